package config

// TargetConfig is the effective configuration of a single target: the
// deployment's base options with one TargetOverride applied on top.
type TargetConfig struct {
	Transport    string
	Remote       string
	User         string
	Port         int
	Password     string
	PasswordAge  string
	AskPassword  bool
	Keys         []string
	ForwardAgent bool
	KnownHosts   string

	LocalDir     string
	RemoteDir    string
	ReleaseCount int
	ReleaseDir   string
	PublicDir    string
	BaseDomain   string
	Excludes     []string
}

// Host returns the label used for this target in logs and listings.
func (c TargetConfig) Host() string {
	if c.User != "" {
		return c.User + "@" + c.Remote
	}
	return c.Remote
}

// Base returns the deployment's options as a TargetConfig with no override applied.
func (d *Deployment) Base() TargetConfig {
	return TargetConfig{
		Transport:    d.Transport,
		Remote:       d.Remote,
		User:         d.User,
		Port:         d.Port,
		Password:     d.Password,
		PasswordAge:  d.PasswordAge,
		AskPassword:  d.AskPassword,
		Keys:         append([]string(nil), d.Keys...),
		ForwardAgent: d.ForwardAgent,
		KnownHosts:   d.KnownHosts,
		LocalDir:     d.LocalDir,
		RemoteDir:    d.RemoteDir,
		ReleaseCount: d.ReleaseCount,
		ReleaseDir:   d.ReleaseDir,
		PublicDir:    d.PublicDir,
		BaseDomain:   d.BaseDomain,
		Excludes:     append([]string(nil), d.Excludes...),
	}
}

// Merge applies o on top of base. Every field set in o wins; list fields are
// replaced, not appended.
func Merge(base TargetConfig, o TargetOverride) TargetConfig {
	merged := base
	set(&merged.Transport, o.Transport)
	set(&merged.Remote, o.Remote)
	set(&merged.User, o.User)
	set(&merged.Port, o.Port)
	set(&merged.Password, o.Password)
	set(&merged.PasswordAge, o.PasswordAge)
	set(&merged.AskPassword, o.AskPassword)
	set(&merged.Keys, o.Keys)
	set(&merged.ForwardAgent, o.ForwardAgent)
	set(&merged.KnownHosts, o.KnownHosts)
	set(&merged.LocalDir, o.LocalDir)
	set(&merged.RemoteDir, o.RemoteDir)
	set(&merged.ReleaseCount, o.ReleaseCount)
	set(&merged.ReleaseDir, o.ReleaseDir)
	set(&merged.PublicDir, o.PublicDir)
	set(&merged.BaseDomain, o.BaseDomain)
	set(&merged.Excludes, o.Excludes)
	return merged
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// TargetConfigs returns one merged TargetConfig per entry in Targets, in
// declaration order. A deployment without a targets list but with a base
// remote deploys to that single remote.
func (d *Deployment) TargetConfigs() []TargetConfig {
	base := d.Base()
	if len(d.Targets) == 0 {
		if base.Remote == "" {
			return nil
		}
		return []TargetConfig{base}
	}
	configs := make([]TargetConfig, len(d.Targets))
	for i, o := range d.Targets {
		configs[i] = Merge(base, o)
	}
	return configs
}
