// Package catalog holds the static list of services a patient can book.
package catalog

import (
	"sort"
	"strconv"
)

// Service is a bookable treatment identified by a short numeric code.
type Service struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Catalog is an immutable, code-ordered set of services.
type Catalog struct {
	services []Service
	byCode   map[string]Service
}

// defaultServices mirrors the clinic's treatment list.
var defaultServices = []Service{
	{Code: "1", Label: "Penambalan estetik"},
	{Code: "2", Label: "Cabut gigi dewasa"},
	{Code: "3", Label: "Cabut gigi anak"},
	{Code: "4", Label: "Implan"},
	{Code: "5", Label: "Kawat gigi"},
	{Code: "6", Label: "Gigi palsu"},
	{Code: "7", Label: "Veneer"},
}

// Default returns the clinic's service catalog.
func Default() *Catalog {
	return New(defaultServices)
}

// New builds a catalog from the given services. Later duplicates of a code are ignored.
func New(services []Service) *Catalog {
	c := &Catalog{byCode: make(map[string]Service, len(services))}
	for _, s := range services {
		if _, dup := c.byCode[s.Code]; dup {
			continue
		}
		c.byCode[s.Code] = s
		c.services = append(c.services, s)
	}
	sort.SliceStable(c.services, func(i, j int) bool {
		return codeLess(c.services[i].Code, c.services[j].Code)
	})
	return c
}

// Lookup returns the service registered under code.
func (c *Catalog) Lookup(code string) (Service, bool) {
	s, ok := c.byCode[code]
	return s, ok
}

// All returns a copy of the services in code order.
func (c *Catalog) All() []Service {
	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out
}

// Labels returns the service labels in code order.
func (c *Catalog) Labels() []string {
	labels := make([]string, 0, len(c.services))
	for _, s := range c.services {
		labels = append(labels, s.Label)
	}
	return labels
}

// Len returns the number of services.
func (c *Catalog) Len() int {
	return len(c.services)
}

// codeLess orders numeric codes numerically and falls back to string order.
func codeLess(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		return ai < bi
	}
	return a < b
}
