package store

import "fmt"

// RecordsKey is the slot holding one owner's collection, e.g. "todo-records-tg42".
func RecordsKey(app, owner string) string {
	return fmt.Sprintf("%s-records-%s", app, owner)
}

// UserFlagKey is a per-owner preference slot, e.g. "todo-compact-tg42".
func UserFlagKey(app, name, owner string) string {
	return fmt.Sprintf("%s-%s-%s", app, name, owner)
}
