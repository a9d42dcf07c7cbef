// Package validation reúne reglas de formato compartidas por la API y la CLI.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Wildcard autoriza cualquier scope.
const Wildcard = "*"

// Reglas de nombre de scope:
//   - sólo minúsculas, empieza y termina con [a-z0-9]
//   - en el medio se permite [a-z0-9:_.-]
//   - largo 1..64, sin espacios ni ';'
//
// Válidos: admin, credentials:read, orders:write.v2
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidScopeName true si name es un scope bien formado o el comodín.
func ValidScopeName(name string) bool {
	return name == Wildcard || scopeNameRe.MatchString(name)
}

// NormalizeScopes recorta, deduplica y ordena. Entradas vacías se ignoran;
// un nombre inválido corta con error.
func NormalizeScopes(in []string) ([]string, error) {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !ValidScopeName(s) {
			return nil, fmt.Errorf("invalid scope %q", s)
		}
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
