// Package synonym groups markets that ask the same underlying question, so
// cross-market and temporal comparisons know which markets to line up.
package synonym

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// GroupSpec is one configured group: markets join by keyword match on the
// title or by explicit id listing.
type GroupSpec struct {
	Name         string   `yaml:"name"`
	Keywords     []string `yaml:"keywords"`
	Explicit     []string `yaml:"explicit"`
	GroupMinSize int      `yaml:"group_min_size"`
	Method       string   `yaml:"method"`
}

// Config is the synonym group configuration file.
type Config struct {
	Groups []GroupSpec `yaml:"groups"`
}

// LoadConfig reads the group configuration from path. A missing file yields
// an empty config rather than an error.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("synonym: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("synonym: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Matcher builds synonym groups from market titles, embeddings when they are
// available, and explicit id lists.
type Matcher struct {
	cfg          Config
	threshold    float64
	minCommunity int
	logger       *slog.Logger
}

// NewMatcher creates a Matcher. threshold is the cosine similarity needed to
// link two markets in embedding mode, minCommunity the smallest embedding
// community that becomes a group.
func NewMatcher(cfg Config, threshold float64, minCommunity int, logger *slog.Logger) *Matcher {
	if threshold <= 0 {
		threshold = 0.75
	}
	if minCommunity < 2 {
		minCommunity = 2
	}
	return &Matcher{
		cfg:          cfg,
		threshold:    threshold,
		minCommunity: minCommunity,
		logger:       logger.With(slog.String("component", "synonym_matcher")),
	}
}

// BuildGroups returns the synonym groups over the given markets. Embeddings
// are optional; without them embedding-method groups degrade to keyword
// matching.
func (m *Matcher) BuildGroups(markets []domain.Market, embeddings map[string][]float64) []domain.SynonymGroup {
	groups := m.keywordGroups(markets)

	if len(embeddings) >= m.minCommunity {
		groups = mergeGroups(groups, m.embeddingGroups(markets, embeddings))
	} else if hasEmbeddingSpec(m.cfg) {
		m.logger.Debug("no embeddings available, using keyword matching only")
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Title < groups[j].Title })
	return groups
}

func (m *Matcher) keywordGroups(markets []domain.Market) []domain.SynonymGroup {
	var groups []domain.SynonymGroup
	for _, spec := range m.cfg.Groups {
		explicit := make(map[string]struct{}, len(spec.Explicit))
		for _, id := range spec.Explicit {
			explicit[id] = struct{}{}
		}

		members := map[string]struct{}{}
		for _, market := range markets {
			if _, ok := explicit[market.ID]; ok {
				members[market.ID] = struct{}{}
				continue
			}
			title := strings.ToLower(market.Title)
			for _, kw := range spec.Keywords {
				if kw != "" && strings.Contains(title, strings.ToLower(kw)) {
					members[market.ID] = struct{}{}
					break
				}
			}
		}

		minSize := spec.GroupMinSize
		if minSize < 1 {
			minSize = 1
		}
		if len(members) < minSize {
			continue
		}

		method := spec.Method
		if method == "" || method == domain.GroupMethodEmbedding {
			method = domain.GroupMethodKeyword
		}
		groups = append(groups, domain.SynonymGroup{
			Title:   spec.Name,
			Method:  method,
			Members: sortedKeys(members),
		})
	}
	return groups
}

// embeddingGroups links markets whose title embeddings are close and returns
// the connected components that reach the community size floor.
func (m *Matcher) embeddingGroups(markets []domain.Market, embeddings map[string][]float64) []domain.SynonymGroup {
	var ids []string
	byID := make(map[string]domain.Market, len(markets))
	for _, market := range markets {
		if _, ok := embeddings[market.ID]; ok {
			ids = append(ids, market.ID)
			byID[market.ID] = market
		}
	}
	sort.Strings(ids)

	parent := make(map[string]string, len(ids))
	for _, id := range ids {
		parent[id] = id
	}
	var find func(string) string
	find = func(id string) string {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if cosine(embeddings[ids[i]], embeddings[ids[j]]) >= m.threshold {
				parent[find(ids[i])] = find(ids[j])
			}
		}
	}

	components := map[string][]string{}
	for _, id := range ids {
		root := find(id)
		components[root] = append(components[root], id)
	}

	var groups []domain.SynonymGroup
	for root, members := range components {
		if len(members) < m.minCommunity {
			continue
		}
		sort.Strings(members)
		groups = append(groups, domain.SynonymGroup{
			Title:   normalizedGroupTitle(byID[root].Title),
			Method:  domain.GroupMethodEmbedding,
			Members: members,
		})
	}
	return groups
}

// mergeGroups unions groups that share any member, so a configured group and
// an embedding cluster overlapping on one market become a single group. The
// configured group's title and method win; a's groups come first.
func mergeGroups(a, b []domain.SynonymGroup) []domain.SynonymGroup {
	all := make([]domain.SynonymGroup, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	if len(all) == 0 {
		return nil
	}

	parent := make([]int, len(all))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	seen := map[string]int{}
	for i, g := range all {
		for _, id := range g.Members {
			if j, ok := seen[id]; ok {
				// Union toward the earlier group so its title survives.
				ri, rj := find(i), find(j)
				if ri != rj {
					if ri < rj {
						parent[rj] = ri
					} else {
						parent[ri] = rj
					}
				}
				continue
			}
			seen[id] = i
		}
	}

	components := map[int]map[string]struct{}{}
	var order []int
	for i, g := range all {
		root := find(i)
		members, ok := components[root]
		if !ok {
			members = map[string]struct{}{}
			components[root] = members
			order = append(order, root)
		}
		for _, id := range g.Members {
			members[id] = struct{}{}
		}
	}

	out := make([]domain.SynonymGroup, 0, len(order))
	for _, root := range order {
		g := all[root]
		g.Members = sortedKeys(components[root])
		out = append(out, g)
	}
	return out
}

func hasEmbeddingSpec(cfg Config) bool {
	for _, spec := range cfg.Groups {
		if spec.Method == domain.GroupMethodEmbedding {
			return true
		}
	}
	return false
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func normalizedGroupTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
