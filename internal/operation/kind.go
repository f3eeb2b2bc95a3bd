// Package operation tracks which kinds of svn operations are in flight on a
// working copy and decides idleness from that.
package operation

// Kind names an operation a repository controller can run.
type Kind string

const (
	Add              Kind = "Add"
	AddChangelist    Kind = "AddChangelist"
	AddToIgnore      Kind = "AddToIgnore"
	Changes          Kind = "Changes"
	Cleanup          Kind = "Cleanup"
	Commit           Kind = "Commit"
	CurrentBranch    Kind = "CurrentBranch"
	Info             Kind = "Info"
	List             Kind = "List"
	Log              Kind = "Log"
	Merge            Kind = "Merge"
	NewBranch        Kind = "NewBranch"
	Patch            Kind = "Patch"
	Remove           Kind = "Remove"
	RemoveChangelist Kind = "RemoveChangelist"
	Resolve          Kind = "Resolve"
	Resolved         Kind = "Resolved"
	Revert           Kind = "Revert"
	Show             Kind = "Show"
	Status           Kind = "Status"
	StatusRemote     Kind = "StatusRemote"
	SwitchBranch     Kind = "SwitchBranch"
	Update           Kind = "Update"
)

// IsReadOnly reports whether k never mutates the working copy. Read-only
// operations skip the model refresh and do not make a repository busy.
func (k Kind) IsReadOnly() bool {
	switch k {
	case Info, Log, Show, CurrentBranch, Changes, List:
		return true
	}
	return false
}

// ShowsProgress reports whether a UI should show a progress indicator while k runs.
func (k Kind) ShowsProgress() bool {
	switch k {
	case CurrentBranch, Show, Info:
		return false
	}
	return true
}
