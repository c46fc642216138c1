// Package director injects stage directions into the conversation.
//
// A command is addressed to a chosen subset of agents and runs a sequential
// turn for exactly that subset; narration is addressed to everyone and
// starts no turn on its own. Both appear in the log as synthetic non-agent
// entries with the addressing rendered into their content.
package director
