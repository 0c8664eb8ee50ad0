// Package topic defines dot-separated event topics and wildcard matching.
//
// Topics name what happened, most general segment first:
//
//	debug.stopped
//	script.error
//	cartridge.state.changed
//
// Subscription patterns may use "*" for exactly one segment and "**" for
// zero or more segments:
//
//	debug.*          matches debug.stopped and debug.resumed
//	cartridge.**     matches cartridge.state.changed and cartridge.reloaded
//	**               matches everything
package topic
