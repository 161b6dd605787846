package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/linepulse/linepulse/pkg/types"
)

// SensorSpec declares one sensor mounted on a post, with its thresholds.
type SensorSpec struct {
	Type types.SensorType `yaml:"type"`
	Unit string           `yaml:"unit"`
	Min  float64          `yaml:"min"`
	Max  float64          `yaml:"max"`

	// AlertLevel is the severity an out-of-threshold reading alerts with.
	// Defaults to "warning" when empty.
	AlertLevel types.Severity `yaml:"alert_level"`
}

// Post is one workstation on a line.
type Post struct {
	ID      string       `yaml:"id"`
	Code    string       `yaml:"code"`
	Name    string       `yaml:"name"`
	LineID  string       `yaml:"-"`
	Sensors []SensorSpec `yaml:"sensors"`
}

// Line is one production line and its posts.
type Line struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Posts []Post `yaml:"posts"`
}

// file is the on-disk registry shape.
type file struct {
	Lines     []Line           `yaml:"lines"`
	Schedules []types.Schedule `yaml:"schedules"`
}

// Registry is the loaded plant registry. All lookups are read-only and safe
// for concurrent use.
type Registry struct {
	lines     map[string]*Line
	posts     map[string]*Post
	order     []string                    // line IDs in file order
	schedules map[string][]types.Schedule // by post ID
}

// Load reads and validates the registry YAML at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %q: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: parse yaml: %w", err)
	}

	r := &Registry{
		lines:     make(map[string]*Line, len(f.Lines)),
		posts:     make(map[string]*Post),
		schedules: make(map[string][]types.Schedule),
	}

	for i := range f.Lines {
		ln := &f.Lines[i]
		if ln.ID == "" {
			return nil, fmt.Errorf("registry: line with empty id")
		}
		if _, dup := r.lines[ln.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate line id %q", ln.ID)
		}
		r.lines[ln.ID] = ln
		r.order = append(r.order, ln.ID)

		for j := range ln.Posts {
			p := &ln.Posts[j]
			if p.ID == "" {
				return nil, fmt.Errorf("registry: line %q: post with empty id", ln.ID)
			}
			if _, dup := r.posts[p.ID]; dup {
				return nil, fmt.Errorf("registry: duplicate post id %q", p.ID)
			}
			p.LineID = ln.ID
			for k := range p.Sensors {
				if p.Sensors[k].AlertLevel == "" {
					p.Sensors[k].AlertLevel = types.SeverityWarning
				}
			}
			r.posts[p.ID] = p
		}
	}

	for _, s := range f.Schedules {
		if _, ok := r.posts[s.PostID]; !ok {
			return nil, fmt.Errorf("registry: schedule %q references unknown post %q", s.ID, s.PostID)
		}
		r.schedules[s.PostID] = append(r.schedules[s.PostID], s)
	}

	return r, nil
}

// Line returns the line with the given ID.
func (r *Registry) Line(id string) (*Line, bool) {
	ln, ok := r.lines[id]
	return ln, ok
}

// Lines returns all lines in file order.
func (r *Registry) Lines() []*Line {
	out := make([]*Line, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.lines[id])
	}
	return out
}

// Post returns the post with the given ID.
func (r *Registry) Post(id string) (*Post, bool) {
	p, ok := r.posts[id]
	return p, ok
}

// Posts returns the posts of a line in declaration order. Nil for an unknown line.
func (r *Registry) Posts(lineID string) []*Post {
	ln, ok := r.lines[lineID]
	if !ok {
		return nil
	}
	out := make([]*Post, 0, len(ln.Posts))
	for i := range ln.Posts {
		out = append(out, &ln.Posts[i])
	}
	return out
}

// Schedules returns the maintenance schedules for one post.
func (r *Registry) Schedules(postID string) []types.Schedule {
	return r.schedules[postID]
}

// LineSchedules returns the schedules for every post on a line.
func (r *Registry) LineSchedules(lineID string) []types.Schedule {
	var out []types.Schedule
	for _, p := range r.Posts(lineID) {
		out = append(out, r.schedules[p.ID]...)
	}
	return out
}
