// Package plugin serves methods implemented as JavaScript files.
//
// Each .js file in the plugins directory names the method it serves with a
// directive comment and defines either execute or executeBatch:
//
//	// @method getUser
//	function execute(id) {
//	    scope.read("users");
//	    return { id: id, name: "user" + id };
//	}
//
// execute is called once per job with the job's arguments. executeBatch is
// called once per request with the argument arrays of every job and must
// return one result per job, in order. Scripts see these globals:
//
//	scope.read(table)    scope.changed(table)    scope.service
//	scope.traceId        scope.op                console.log/warn/error/debug
//	rpc.call(endpoint, port, method, args)
package plugin

import (
	"errors"

	"github.com/dop251/goja"

	"httprpc/internal/client"
	"httprpc/internal/scope"
)

// Entry points a script may define
const (
	FuncExecute      = "execute"
	FuncExecuteBatch = "executeBatch"
)

// ErrTimeout is returned when a script runs past the execution timeout
var ErrTimeout = errors.New("plugin execution timed out")

// Plugin represents a loaded JavaScript plugin
type Plugin struct {
	Name   string // plugin name (filename without extension)
	Method string // method this plugin serves
	Path   string
	Script string // JavaScript source code
}

// compiled is a plugin whose script compiled and defines an entry point
type compiled struct {
	plugin  *Plugin
	program *goja.Program
	batch   bool
}

// Caller issues calls to other services on behalf of a script
type Caller interface {
	Call(sc *scope.Scope, req client.Request) *client.Pending
}
