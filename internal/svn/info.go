package svn

import (
	"encoding/xml"
	"fmt"
)

// InfoEntry is the parsed `svn info --xml` entry.
type InfoEntry struct {
	Path        string `xml:"path,attr"`
	Revision    string `xml:"revision,attr"`
	Kind        string `xml:"kind,attr"`
	URL         string `xml:"url"`
	RelativeURL string `xml:"relative-url"`
	Repository  struct {
		Root string `xml:"root"`
		UUID string `xml:"uuid"`
	} `xml:"repository"`
	WcInfo struct {
		WcrootAbspath string `xml:"wcroot-abspath"`
		Schedule      string `xml:"schedule"`
		Depth         string `xml:"depth"`
	} `xml:"wc-info"`
	Commit struct {
		Revision string `xml:"revision,attr"`
		Author   string `xml:"author"`
		Date     string `xml:"date"`
	} `xml:"commit"`
}

type infoDocument struct {
	XMLName xml.Name    `xml:"info"`
	Entries []InfoEntry `xml:"entry"`
}

// ParseInfoXML returns the first entry of `svn info --xml` output.
func ParseInfoXML(data []byte) (*InfoEntry, error) {
	var doc infoDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse info xml: %w", err)
	}
	if len(doc.Entries) == 0 {
		return nil, fmt.Errorf("parse info xml: no entry")
	}
	entry := doc.Entries[0]
	return &entry, nil
}
