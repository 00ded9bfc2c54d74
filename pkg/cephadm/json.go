package cephadm

// MonDump is the subset of `ceph mon dump -f json` used here
type MonDump struct {
	Epoch int `json:"epoch"`
	Mons  []struct {
		Rank int    `json:"rank"`
		Name string `json:"name"`
		Addr string `json:"addr"`
	} `json:"mons"`
	Quorum []int `json:"quorum"`
}

// OSDDump is the subset of `ceph osd dump -f json` used here
type OSDDump struct {
	Epoch int `json:"epoch"`
	OSDs  []struct {
		OSD int `json:"osd"`
		Up  int `json:"up"`
		In  int `json:"in"`
	} `json:"osds"`
}

// Up counts the OSDs reported up
func (d *OSDDump) Up() int {
	n := 0
	for _, o := range d.OSDs {
		if o.Up == 1 {
			n++
		}
	}
	return n
}

// Health is the subset of `ceph health -f json` used here
type Health struct {
	Status string `json:"status"`
	Checks map[string]struct {
		Severity string `json:"severity"`
		Summary  struct {
			Message string `json:"message"`
		} `json:"summary"`
	} `json:"checks"`
}

// OrchHost is one entry of `ceph orch host ls --format=json`
type OrchHost struct {
	Hostname string `json:"hostname"`
	Addr     string `json:"addr"`
}
