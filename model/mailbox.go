package model

import "strings"

// Mailbox is a remote mailbox as reported by the server listing.
type Mailbox struct {
	Name      string
	Delimiter rune
	// NoSelect marks hierarchy nodes that cannot be examined.
	NoSelect bool
}

// Filename derives the local archive name: every delimiter in the name
// becomes a dot and ".mbox" is appended. Path separators are replaced too,
// whatever the server delimiter, so the result never leaves the output
// directory. Distinct names may collide.
func (m Mailbox) Filename() string {
	name := m.Name
	if m.Delimiter != 0 {
		name = strings.ReplaceAll(name, string(m.Delimiter), ".")
	}
	name = pathSeparators.Replace(name)
	return name + ".mbox"
}

var pathSeparators = strings.NewReplacer("/", ".", `\`, ".")

// MailboxStatus is the result of examining a mailbox.
type MailboxStatus struct {
	Messages    uint32
	UIDValidity uint32
}

// Collisions groups mailboxes by derived filename and returns the filenames
// claimed by more than one mailbox.
func Collisions(mailboxes []Mailbox) map[string][]string {
	byFile := make(map[string][]string, len(mailboxes))
	for _, mb := range mailboxes {
		byFile[mb.Filename()] = append(byFile[mb.Filename()], mb.Name)
	}
	for file, names := range byFile {
		if len(names) < 2 {
			delete(byFile, file)
		}
	}
	return byFile
}
