package queue

import "time"

// QuotaSnapshot is the quota information the upstream platform client
// contract exposes (spec §1, §4.3): the request budget remaining in the
// current window, the seconds until that window resets, and the account's
// total hourly limit.
type QuotaSnapshot struct {
	Remaining        int
	SecondsToReset   int
	TotalHourlyLimit int
}

// quotaReserve is subtracted from Remaining (floored at 1) before the
// target-rps formula runs, to leave headroom (spec §4.3).
const quotaReserve = 250

// maxQuotaWait caps the quota-aware formula's result at 10 seconds (spec
// §4.3).
const maxQuotaWait = 10 * time.Second

// quotaAwareWait implements the target-rps algorithm from spec §4.3:
//
//	target_rps = totalHourlyLimit / 3600
//	wait = max(0, min(10, secondsToReset - remaining/target_rps))
//
// A zero result signals "fall back to the estimated-requests formula" to
// the caller; quotaAwareWait itself only computes the target-rps half.
func quotaAwareWait(q QuotaSnapshot) time.Duration {
	remaining := q.Remaining - quotaReserve
	if remaining < 1 {
		remaining = 1
	}
	if q.TotalHourlyLimit <= 0 {
		return 0
	}
	targetRPS := float64(q.TotalHourlyLimit) / 3600.0
	waitSeconds := float64(q.SecondsToReset) - float64(remaining)/targetRPS
	if waitSeconds < 0 {
		waitSeconds = 0
	}
	wait := time.Duration(waitSeconds * float64(time.Second))
	if wait > maxQuotaWait {
		wait = maxQuotaWait
	}
	return wait
}

// PacingConfig carries the two knobs the quota-blind fallback formula needs
// (spec §4.3): the configured pause between requests, and the configured
// hourly request budget when no live quota snapshot is available.
type PacingConfig struct {
	ConfiguredPause         time.Duration
	ConfiguredRequestsPerHr int
}

// nextDelay computes how long to advance the pacing deadline for a poll (or
// a voluntary waitIfNeeded call) that cost an estimated n upstream requests,
// given the current quota state.
func nextDelay(n int, quota *QuotaSnapshot, cfg PacingConfig) time.Duration {
	if quota != nil {
		if w := quotaAwareWait(*quota); w > 0 {
			return w
		}
		return time.Duration(n) * cfg.ConfiguredPause
	}
	if cfg.ConfiguredRequestsPerHr <= 0 {
		return time.Duration(n) * cfg.ConfiguredPause
	}
	perRequest := time.Hour / time.Duration(cfg.ConfiguredRequestsPerHr)
	return time.Duration(n) * perRequest
}
