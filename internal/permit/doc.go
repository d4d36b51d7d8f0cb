// Package permit implements the tool-permission allow-list grammar used to
// pre-authorize agent tool calls for unattended execution.
//
// Pattern forms:
//
//	*                  every tool from every server
//	lookout:           every tool from the "lookout" server (trailing colon)
//	lookout:*          same, explicit wildcard
//	lookout:send_mail  one specific server tool
//	lookout:mail_*     shell-style glob over the tool name
//	Bash               a built-in backend tool, matched by exact name
//
// The package also translates the grammar into the backend's native tool
// identifiers (mcp__<server>__<tool>) and classifies raw --allow shell
// tokens as either a pattern list or the start of free prompt text.
package permit
