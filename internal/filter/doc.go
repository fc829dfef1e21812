// Package filter gates which messages reach a consumer using CEL
// expressions such as:
//
//	event == "update" && json.type == "refetchConfig"
package filter
