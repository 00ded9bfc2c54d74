package config

// ImageRef is the resolved container image and the source ref it was built from
type ImageRef struct {
	Image string
	// Ref is the git ref used to fetch a matching cephadm binary
	Ref string
}

// ResolveImage picks the container image for the cluster.
//
// Priority: explicit image, then the base image tagged with sha1 (with a
// "-crimson" suffix for the crimson flavor), then the base image tagged with
// the branch. The base image comes from containers.image, falling back to the
// site default.
func (j *Job) ResolveImage() (ImageRef, error) {
	branch := j.Branch
	if branch == "" {
		branch = DefaultBranch
	}

	if j.Image != "" {
		ref := branch
		if j.SHA1 != "" {
			ref = j.SHA1
		}
		return ImageRef{Image: j.Image, Ref: ref}, nil
	}

	base := j.Containers.Image
	if base == "" {
		base = j.DefaultImage
	}
	if base == "" {
		return ImageRef{}, Errorf("the image is undefined: set image, containers.image or defaults.cephadm.containers.image")
	}

	if j.SHA1 != "" {
		if j.Flavor == "crimson" {
			return ImageRef{Image: base + ":" + j.SHA1 + "-" + j.Flavor, Ref: j.SHA1}, nil
		}
		return ImageRef{Image: base + ":" + j.SHA1, Ref: j.SHA1}, nil
	}

	return ImageRef{Image: base + ":" + branch, Ref: branch}, nil
}
