// Package suppress keeps existing clients and do-not-contact addresses out
// of the outreach queue.
package suppress

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/fetcher"
	"github.com/benefitscout/leadgen-cli/internal/model"
)

// List is the combined suppression set. Client names are matched on the
// normalized employer string, emails and domains on the lowercased value.
type List struct {
	clients map[string]bool
	emails  map[string]bool
	domains map[string]bool
}

// NewList returns an empty suppression list.
func NewList() *List {
	return &List{
		clients: make(map[string]bool),
		emails:  make(map[string]bool),
		domains: make(map[string]bool),
	}
}

func (l *List) AddClient(name string) {
	if n := model.NormalizeEntityName(name); n != "" {
		l.clients[n] = true
	}
}

func (l *List) AddEmail(email string) {
	if e := strings.ToLower(strings.TrimSpace(email)); e != "" {
		l.emails[e] = true
	}
}

func (l *List) AddDomain(domain string) {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "@")
	if d != "" {
		l.domains[d] = true
	}
}

// LoadClients reads a client-suppression CSV with a "Client Name" column.
func (l *List) LoadClients(path string) error {
	rows, err := fetcher.ReadCSVFile(path)
	if err != nil {
		return err
	}
	idx, err := columnIndex(rows, "CLIENT NAME")
	if err != nil {
		return err
	}
	count := 0
	for _, row := range rows[1:] {
		if idx < len(row) && row[idx] != "" {
			l.AddClient(row[idx])
			count++
		}
	}
	zap.L().Info("client suppression loaded", zap.String("path", path), zap.Int("clients", count))
	return nil
}

// LoadDNC reads a do-not-contact CSV with "Email" and "Domain" columns.
// Either column may be empty on a given row.
func (l *List) LoadDNC(path string) error {
	rows, err := fetcher.ReadCSVFile(path)
	if err != nil {
		return err
	}
	emailIdx, err := columnIndex(rows, "EMAIL")
	if err != nil {
		return err
	}
	domainIdx, err := columnIndex(rows, "DOMAIN")
	if err != nil {
		return err
	}
	for _, row := range rows[1:] {
		if emailIdx < len(row) {
			l.AddEmail(row[emailIdx])
		}
		if domainIdx < len(row) {
			l.AddDomain(row[domainIdx])
		}
	}
	zap.L().Info("dnc list loaded",
		zap.String("path", path),
		zap.Int("emails", len(l.emails)),
		zap.Int("domains", len(l.domains)),
	)
	return nil
}

// BlockedClient reports whether the employer is an existing client.
func (l *List) BlockedClient(employer string) bool {
	return l.clients[model.NormalizeEntityName(employer)]
}

// BlockedEmail reports whether the address or its domain is on the DNC list.
func (l *List) BlockedEmail(email string) bool {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return false
	}
	if l.emails[e] {
		return true
	}
	if at := strings.LastIndex(e, "@"); at >= 0 {
		return l.domains[e[at+1:]]
	}
	return false
}

// Size returns the total number of suppression entries.
func (l *List) Size() int {
	return len(l.clients) + len(l.emails) + len(l.domains)
}

func columnIndex(rows [][]string, name string) (int, error) {
	if len(rows) == 0 {
		return 0, eris.New("suppress: empty table")
	}
	for i, h := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	return 0, eris.Errorf("suppress: column %q not found in %v", name, rows[0])
}
