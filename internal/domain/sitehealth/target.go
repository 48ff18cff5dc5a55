package sitehealth

// Target is a single page evaluated by a run.
type Target struct {
	ID    string `json:"id" yaml:"id" mapstructure:"id"`
	Title string `json:"title" yaml:"title" mapstructure:"title"`
	URL   string `json:"url" yaml:"url" mapstructure:"url"`
}

// Label is the human readable name used in progress and error reports.
func (t Target) Label() string {
	if t.Title != "" {
		return t.Title
	}
	return t.URL
}
