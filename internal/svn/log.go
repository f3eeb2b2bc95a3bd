package svn

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// LogPath is one changed path of a log entry (requires --verbose).
type LogPath struct {
	Action       string `xml:"action,attr"`
	Kind         string `xml:"kind,attr"`
	CopyFromPath string `xml:"copyfrom-path,attr"`
	CopyFromRev  string `xml:"copyfrom-rev,attr"`
	Path         string `xml:",chardata"`
}

// LogEntry is one revision of `svn log --xml`.
type LogEntry struct {
	Revision string    `xml:"revision,attr"`
	Author   string    `xml:"author"`
	Date     string    `xml:"date"`
	Msg      string    `xml:"msg"`
	Paths    []LogPath `xml:"paths>path"`
}

// ListEntry is one item of `svn list --xml`.
type ListEntry struct {
	Kind   string `xml:"kind,attr"`
	Name   string `xml:"name"`
	Size   string `xml:"size"`
	Commit struct {
		Revision string `xml:"revision,attr"`
		Author   string `xml:"author"`
		Date     string `xml:"date"`
	} `xml:"commit"`
}

// ParseLogXML parses `svn log --xml` output.
func ParseLogXML(data []byte) ([]LogEntry, error) {
	var doc struct {
		XMLName xml.Name   `xml:"log"`
		Entries []LogEntry `xml:"logentry"`
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse log xml: %w", err)
	}
	return doc.Entries, nil
}

// ParseListXML parses `svn list --xml` output.
func ParseListXML(data []byte) ([]ListEntry, error) {
	var doc struct {
		XMLName xml.Name `xml:"lists"`
		Lists   []struct {
			Entries []ListEntry `xml:"entry"`
		} `xml:"list"`
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse list xml: %w", err)
	}
	var entries []ListEntry
	for _, list := range doc.Lists {
		entries = append(entries, list.Entries...)
	}
	return entries, nil
}
