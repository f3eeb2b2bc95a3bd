package svn

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Status is an svn item or property status as printed by `svn status --xml`.
type Status string

const (
	StatusAdded       Status = "added"
	StatusConflicted  Status = "conflicted"
	StatusDeleted     Status = "deleted"
	StatusExternal    Status = "external"
	StatusIgnored     Status = "ignored"
	StatusIncomplete  Status = "incomplete"
	StatusMerged      Status = "merged"
	StatusMissing     Status = "missing"
	StatusModified    Status = "modified"
	StatusNone        Status = "none"
	StatusNormal      Status = "normal"
	StatusObstructed  Status = "obstructed"
	StatusReplaced    Status = "replaced"
	StatusUnversioned Status = "unversioned"
)

// WcStatus carries the working-copy lock and switch flags of an entry.
type WcStatus struct {
	Locked   bool
	Switched bool
}

// ReposStatus is present only when the status was run with --show-updates.
type ReposStatus struct {
	Item  Status
	Props Status
	Lock  bool
}

// Commit is the last committed revision of an entry.
type Commit struct {
	Revision string
	Author   string
	Date     string
}

// StatusEntry is one row of `svn status --xml`.
type StatusEntry struct {
	// Path as printed by svn (relative to the cwd of the status call), with
	// forward slashes.
	Path       string
	Status     Status
	Props      Status
	Changelist string
	WcStatus   WcStatus
	// ReposStatus is nil unless remote changes were requested.
	ReposStatus *ReposStatus
	// Rename is the move source of an added entry.
	Rename string
	Commit *Commit
	// RepositoryUUID is filled for externals by Repository.Status.
	RepositoryUUID string
}

type statusDocument struct {
	XMLName     xml.Name           `xml:"status"`
	Targets     []statusTarget     `xml:"target"`
	Changelists []statusChangelist `xml:"changelist"`
}

type statusTarget struct {
	Path    string        `xml:"path,attr"`
	Entries []statusEntry `xml:"entry"`
}

type statusChangelist struct {
	Name    string        `xml:"name,attr"`
	Entries []statusEntry `xml:"entry"`
}

type statusEntry struct {
	Path     string `xml:"path,attr"`
	WcStatus struct {
		Item      string     `xml:"item,attr"`
		Props     string     `xml:"props,attr"`
		WcLocked  string     `xml:"wc-locked,attr"`
		Switched  string     `xml:"switched,attr"`
		MovedFrom string     `xml:"moved-from,attr"`
		MovedTo   string     `xml:"moved-to,attr"`
		Commit    *commitXML `xml:"commit"`
	} `xml:"wc-status"`
	ReposStatus *struct {
		Item  string    `xml:"item,attr"`
		Props string    `xml:"props,attr"`
		Lock  *struct{} `xml:"lock"`
	} `xml:"repos-status"`
}

type commitXML struct {
	Revision string `xml:"revision,attr"`
	Author   string `xml:"author"`
	Date     string `xml:"date"`
}

// ParseStatusXML parses `svn status --xml` output.
// Deleted entries that are the source of a move are dropped; the matching
// added entry carries the source in Rename.
func ParseStatusXML(data []byte) ([]StatusEntry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var doc statusDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse status xml: %w", err)
	}

	var entries []StatusEntry
	for _, target := range doc.Targets {
		for _, raw := range target.Entries {
			if entry, ok := convertStatusEntry(raw, ""); ok {
				entries = append(entries, entry)
			}
		}
	}
	for _, changelist := range doc.Changelists {
		for _, raw := range changelist.Entries {
			if entry, ok := convertStatusEntry(raw, changelist.Name); ok {
				entries = append(entries, entry)
			}
		}
	}
	return entries, nil
}

func convertStatusEntry(raw statusEntry, changelist string) (StatusEntry, bool) {
	wc := raw.WcStatus
	if Status(wc.Item) == StatusDeleted && wc.MovedTo != "" {
		return StatusEntry{}, false
	}

	entry := StatusEntry{
		Path:       FixPathSeparator(raw.Path),
		Status:     Status(wc.Item),
		Props:      Status(wc.Props),
		Changelist: changelist,
		WcStatus: WcStatus{
			Locked:   wc.WcLocked == "true",
			Switched: wc.Switched == "true",
		},
	}
	if entry.Props == "" {
		entry.Props = StatusNone
	}
	if entry.Status == StatusAdded && wc.MovedFrom != "" {
		entry.Rename = FixPathSeparator(wc.MovedFrom)
	}
	if wc.Commit != nil {
		entry.Commit = &Commit{
			Revision: wc.Commit.Revision,
			Author:   wc.Commit.Author,
			Date:     wc.Commit.Date,
		}
	}
	if rs := raw.ReposStatus; rs != nil {
		entry.ReposStatus = &ReposStatus{
			Item:  Status(rs.Item),
			Props: Status(rs.Props),
			Lock:  rs.Lock != nil,
		}
	}
	return entry, true
}
