package profile

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type customFile struct {
	Profiles []*Profile `yaml:"profiles"`
}

// LoadCustomProfiles registers additional profiles from a YAML file. Each
// entry must carry at least name, qualify_key, and prompt_template; columns
// are derived from the JSON keys when omitted.
func LoadCustomProfiles(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "profile: read custom profiles %s", path)
	}

	var f customFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return eris.Wrapf(err, "profile: parse custom profiles %s", path)
	}
	if len(f.Profiles) == 0 {
		return eris.Errorf("profile: %s defines no profiles", path)
	}

	for _, p := range f.Profiles {
		if err := Register(p); err != nil {
			return err
		}
	}
	return nil
}
