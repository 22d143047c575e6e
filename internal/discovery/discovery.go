/*
Copyright (C) 2024 Espen Stefansen <espenas+github@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package discovery builds Zabbix low-level discovery documents.
package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Macros used by the bundled templates
const (
	MacroLogFile = "{#LOGFILE}"
	MacroSNI     = "{#SNI}"
)

// DefaultCertDir is where certbot keeps live certificates
const DefaultCertDir = "/etc/letsencrypt/live"

// Document is the LLD JSON shape
type Document struct {
	Data []map[string]string `json:"data"`
}

// LogFiles lists the regular files in dir, one {#LOGFILE} entry each.
// Symlinks count by their target.
func LogFiles(dir string) (*Document, error) {
	return list(dir, MacroLogFile, func(fi os.FileInfo) bool { return fi.Mode().IsRegular() })
}

// CertDomains lists the subdirectories of dir, one {#SNI} entry each
func CertDomains(dir string) (*Document, error) {
	return list(dir, MacroSNI, func(fi os.FileInfo) bool { return fi.IsDir() })
}

func list(dir, macro string, keep func(os.FileInfo) bool) (*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		// dangling links are skipped
		fi, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if keep(fi) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	doc := &Document{Data: make([]map[string]string, 0, len(names))}
	for _, name := range names {
		doc.Data = append(doc.Data, map[string]string{macro: name})
	}

	return doc, nil
}

// JSON encodes the document the way the agent expects it on stdout
func (d *Document) JSON() ([]byte, error) {
	return json.Marshal(d)
}
