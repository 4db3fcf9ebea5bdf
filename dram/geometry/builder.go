package geometry

import "k8s.io/klog/v2"

// Builder can build geometries.
type Builder struct {
	profile     Profile
	profileName string
	profilePath string
}

// MakeBuilder creates a builder that uses the default profile.
func MakeBuilder() Builder {
	return Builder{
		profileName: DefaultProfileName,
	}
}

// WithProfile sets the profile to use directly.
func (b Builder) WithProfile(p Profile) Builder {
	b.profile = p
	b.profileName = ""
	b.profilePath = ""

	return b
}

// WithProfileName selects one of the built-in profiles.
func (b Builder) WithProfileName(name string) Builder {
	b.profileName = name
	b.profilePath = ""

	return b
}

// WithProfileFile loads the profile from a YAML file at build time. It takes
// precedence over the profile name.
func (b Builder) WithProfileFile(path string) Builder {
	b.profilePath = path
	return b
}

// Build creates the geometry.
func (b Builder) Build() (*Geometry, error) {
	p, err := b.resolveProfile()
	if err != nil {
		return nil, err
	}

	err = p.Validate()
	if err != nil {
		return nil, err
	}

	if p.Placeholder {
		klog.Warningf("geometry profile %q uses placeholder bank and "+
			"channel hashes, load measured masks with a profile file", p.Name)
	}

	g := &Geometry{
		profile: p,
		rowMax:  fieldMax(p.RowMask),
	}

	return g, nil
}

// MustBuild is the same as Build, but panics on an invalid profile.
func (b Builder) MustBuild() *Geometry {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}

	return g
}

func (b Builder) resolveProfile() (Profile, error) {
	switch {
	case b.profilePath != "":
		return LoadProfile(b.profilePath)
	case b.profileName != "":
		return LookupProfile(b.profileName)
	default:
		return b.profile, nil
	}
}
