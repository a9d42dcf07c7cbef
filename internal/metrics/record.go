package metrics

import "time"

func RecordRefresh(platform, result string, d time.Duration) {
	if credentialRefreshTotal != nil {
		credentialRefreshTotal.WithLabelValues(platform, result).Inc()
	}
	if credentialRefreshDuration != nil {
		credentialRefreshDuration.WithLabelValues(platform).Observe(d.Seconds())
	}
}

func RecordOAuthCallback(platform, result string) {
	if oauthCallbacksTotal != nil {
		oauthCallbacksTotal.WithLabelValues(platform, result).Inc()
	}
}

func RecordSweep(result string) {
	if sweepRunsTotal != nil {
		sweepRunsTotal.WithLabelValues(result).Inc()
	}
}

func RecordWebhookVerification(result string) {
	if webhookVerifyTotal != nil {
		webhookVerifyTotal.WithLabelValues(result).Inc()
	}
}

func RecordWebhookEvent(outcome string) {
	if webhookEventsTotal != nil {
		webhookEventsTotal.WithLabelValues(outcome).Inc()
	}
}

func RecordSessionToken(tokenType, action string) {
	if sessionTokensTotal != nil {
		sessionTokensTotal.WithLabelValues(tokenType, action).Inc()
	}
}

func RecordAPIKeyVerification(result string) {
	if apiKeyVerifyTotal != nil {
		apiKeyVerifyTotal.WithLabelValues(result).Inc()
	}
}

func RecordRateLimitReject(path string) {
	if rateLimitRejectsTotal != nil {
		rateLimitRejectsTotal.WithLabelValues(normalizePath(path)).Inc()
	}
}
