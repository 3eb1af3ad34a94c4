// Package flowdef loads flows from YAML documents. Steps are scripted in
// Lua, and routers either run a Lua script or switch on a gjson path over
// the flow state
package flowdef
