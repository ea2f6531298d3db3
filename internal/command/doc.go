// Package command is the façade every client surface goes through to make
// the system do something.
//
// Commands are named entries in a static table, each with a declared
// parameter schema validated before dispatch. Item commands resolve the
// item in the active project and translate it into a device Execute call;
// the rest route to the project manager or the state aggregator. Every
// outcome is a Result value with a stable error code.
package command
