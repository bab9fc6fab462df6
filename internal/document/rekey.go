package document

import (
	"context"
	"errors"
	"sort"

	"github.com/kiabasekou/ged-project/internal/model"
)

// RekeyReport summarizes a key rotation pass.
type RekeyReport struct {
	Rewritten int      `json:"rewritten" yaml:"rewritten"`
	Failed    []string `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Rekey rewrites every referenced payload under the primary key. Each payload
// is decrypted and checked against its recorded digest first; payloads that
// fail are listed and left in place.
func (m *Manager) Rekey(ctx context.Context) (*RekeyReport, error) {
	digests, err := m.repo.PayloadDigests(ctx)
	if err != nil {
		return nil, err
	}
	locators := make([]string, 0, len(digests))
	for loc := range digests {
		locators = append(locators, loc)
	}
	sort.Strings(locators)

	report := &RekeyReport{}
	for _, loc := range locators {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		plaintext, err := m.verifier.Read(ctx, loc, digests[loc])
		if err == nil {
			err = m.blobs.Reseal(ctx, loc, plaintext)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return report, err
		}
		if err != nil {
			ev := m.log.Warn()
			if model.IsIntegrityFailure(err) {
				m.metrics.IntegrityFailure()
				ev = m.log.Error()
			}
			ev.Err(err).Str("locator", loc).Msg("re-encryption skipped")
			report.Failed = append(report.Failed, loc)
			continue
		}
		report.Rewritten++
	}
	m.log.Info().Int("rewritten", report.Rewritten).Int("failed", len(report.Failed)).Msg("rekey finished")
	return report, nil
}
