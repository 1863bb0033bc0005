package webdav

import (
	"encoding/xml"
	"os"
	"path"
	"time"
)

// Multistatus is the 207 response body for PROPFIND.
type Multistatus struct {
	XMLName   xml.Name   `xml:"D:multistatus"`
	Xmlns     string     `xml:"xmlns:D,attr"`
	Responses []Response `xml:"D:response"`
}

type Response struct {
	Href     string   `xml:"D:href"`
	Propstat Propstat `xml:"D:propstat"`
}

type Propstat struct {
	Prop   Prop   `xml:"D:prop"`
	Status string `xml:"D:status"`
}

type Prop struct {
	DisplayName      string        `xml:"D:displayname"`
	CreationDate     string        `xml:"D:creationdate,omitempty"`
	GetContentLength *int64        `xml:"D:getcontentlength,omitempty"`
	GetContentType   string        `xml:"D:getcontenttype,omitempty"`
	GetLastModified  string        `xml:"D:getlastmodified,omitempty"`
	ResourceType     *ResourceType `xml:"D:resourcetype"`
}

// ResourceType marks collections with a nested <D:collection/>.
type ResourceType struct {
	Collection *struct{} `xml:"D:collection,omitempty"`
}

const statusOK = "HTTP/1.1 200 OK"

// NewMultistatus creates an empty 207 response document.
func NewMultistatus() *Multistatus {
	return &Multistatus{Xmlns: "DAV:"}
}

// AddFile appends a file resource entry.
func (m *Multistatus) AddFile(href string, info os.FileInfo, contentType string) {
	size := info.Size()
	m.Responses = append(m.Responses, Response{
		Href: href,
		Propstat: Propstat{
			Status: statusOK,
			Prop: Prop{
				DisplayName:      path.Base(href),
				CreationDate:     info.ModTime().UTC().Format(time.RFC3339),
				GetContentLength: &size,
				GetContentType:   contentType,
				GetLastModified:  info.ModTime().UTC().Format(time.RFC1123),
				ResourceType:     &ResourceType{},
			},
		},
	})
}

// AddCollection appends a directory resource entry. Collection hrefs
// carry a trailing slash; some clients refuse to descend without it.
func (m *Multistatus) AddCollection(href string, modTime time.Time) {
	if href == "" {
		href = "/"
	}
	if href[len(href)-1] != '/' {
		href += "/"
	}
	m.Responses = append(m.Responses, Response{
		Href: href,
		Propstat: Propstat{
			Status: statusOK,
			Prop: Prop{
				DisplayName:     path.Base(path.Clean(href)),
				CreationDate:    modTime.UTC().Format(time.RFC3339),
				GetLastModified: modTime.UTC().Format(time.RFC1123),
				ResourceType:    &ResourceType{Collection: &struct{}{}},
			},
		},
	})
}

// Marshal renders the multistatus document as XML.
func (m *Multistatus) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
