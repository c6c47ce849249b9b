package request

// ToDailyRequests decomposes a date-bounded search into one search per
// calendar day in [Since, Until). Each sub-request copies every non-date
// field verbatim; note that MaxTweets therefore applies per day, not to the
// aggregate. Both bounds must be present and Since must precede Until.
//
// The source caps and drifts on long windows, so a long-range search is
// more reliable as independent one-day searches that can also be retried
// one day at a time.
func (s *Search) ToDailyRequests() ([]*Search, error) {
	if s.Since == nil || s.Until == nil {
		return nil, &ValidationError{Field: "since/until", Reason: "both bounds are required for daily splitting"}
	}
	if !s.Since.Before(*s.Until) {
		return nil, &ValidationError{Field: "since", Reason: "must be before until"}
	}

	out := make([]*Search, 0, s.Since.DaysUntil(*s.Until))
	for day := *s.Since; day.Before(*s.Until); day = day.AddDays(1) {
		since := day
		until := day.AddDays(1)
		sub := *s
		sub.Since = &since
		sub.Until = &until
		out = append(out, &sub)
	}
	return out, nil
}
