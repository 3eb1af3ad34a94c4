// Package script turns Lua and Ale source into flow steps and routers
//
// A Lua script sees two locals: state, a table copy of the flow state, and
// inputs, a table of the fired source outputs keyed by step name. Failure
// inputs arrive as their error message. The globals set(key, value) and
// get(path) write and query the live flow state, and fail(message) fails
// the step with that message. The script's return value is the step output;
// a router script returns its label as a string
//
// An Ale script is the body of a procedure whose parameters are input, the
// output of the fired source (or an object of all fired sources), fail, and
// the state keys the step declares as arguments. A returned object is
// written to the state
package script
