// Package discovery advertises and finds wirehome hubs on the local network.
//
// A running hub announces its HTTP API as a DNS-SD service of type
// _wirehome._tcp in the local domain. The instance name is the configured
// hub name; TXT records carry:
//
//	ver   API version (currently "1")
//	path  base path of the message bus API
//	subs  number of subscribers at the time of the last update (optional)
//
// Browsers aggregate addresses per instance name, so a hub reachable on
// several interfaces is reported once.
package discovery
