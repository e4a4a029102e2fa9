package syncrun

import (
	"time"

	"tmdbsync/internal/media"
	"tmdbsync/internal/notifications"
	"tmdbsync/internal/services"
)

// Outcome is an item that was skipped or failed. Destination is set for
// delivery failures.
type Outcome struct {
	Item        string        `json:"item"`
	Destination string        `json:"destination,omitempty"`
	Kind        services.Kind `json:"kind"`
	Cause       string        `json:"cause"`
}

// Report summarizes one run.
type Report struct {
	RunID  string     `json:"run_id,omitempty"`
	Kind   media.Kind `json:"kind"`
	Source Source     `json:"source"`
	DryRun bool       `json:"dry_run"`
	// Requested counts the items the source yielded before ledger filtering.
	Requested        int      `json:"requested"`
	AlreadyDelivered int      `json:"already_delivered"`
	Rejected         []string `json:"rejected,omitempty"`
	// Succeeded counts enriched records that reached the delivery stage.
	Succeeded int            `json:"succeeded"`
	Skipped   []Outcome      `json:"skipped,omitempty"`
	Failed    []Outcome      `json:"failed,omitempty"`
	Delivered map[string]int `json:"delivered,omitempty"`
	Duration  time.Duration  `json:"duration"`

	// Records holds the enriched records of a dry run.
	Records []*media.Record `json:"-"`

	stage string
}

// Counts is the succeeded/skipped/failed summary of a report.
type Counts struct {
	Succeeded int
	Skipped   int
	Failed    int
}

func (r *Report) Counts() Counts {
	return Counts{Succeeded: r.Succeeded, Skipped: len(r.Skipped), Failed: len(r.Failed)}
}

// DeliveredTotal sums deliveries across destinations.
func (r *Report) DeliveredTotal() int {
	total := 0
	for _, n := range r.Delivered {
		total += n
	}
	return total
}

func (r *Report) skip(item string, err error) {
	r.Skipped = append(r.Skipped, outcome(item, "", err))
}

func (r *Report) fail(item, dest string, err error) {
	r.Failed = append(r.Failed, outcome(item, dest, err))
}

func outcome(item, dest string, err error) Outcome {
	o := Outcome{Item: item, Destination: dest, Kind: services.KindOf(err)}
	if err != nil {
		o.Cause = err.Error()
	}
	return o
}

func (r *Report) payload() notifications.Payload {
	c := r.Counts()
	delivered := make(map[string]int, len(r.Delivered))
	for dest, n := range r.Delivered {
		delivered[dest] = n
	}
	return notifications.Payload{
		"kind":      string(r.Kind),
		"succeeded": c.Succeeded,
		"skipped":   c.Skipped,
		"failed":    c.Failed,
		"duration":  r.Duration,
		"delivered": delivered,
	}
}
