// Package cli implements the interactive gophvault command line.
//
// The CLI runs the vault in-process against a SQLite database and a blob
// directory under the configured data directory. It reads one command per
// line:
//
//	hide                  hide files as one disguised bundle (prompts for
//	                      name, disguise type, file paths and PIN)
//	reveal <id> [dir]     decrypt a bundle into dir (default ".")
//	list                  list bundles
//	delete <id>           delete a bundle and free its storage
//	status                show the subscription and storage usage
//	subscribe [tier]      start a billing period (basic, pro, gold)
//	cancel                cancel the subscription
//	help                  show available commands
//	exit | quit           leave the program
//
// PINs are read from the terminal without echo. Ctrl-C cancels the running
// command, not the program.
package cli
