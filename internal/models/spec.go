package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var requiredFields = []string{
	"name",
	"description",
	"start_time",
	"end_time",
	"participation_limits",
	"probability_settings",
	"prizes",
}

// ParseActivitySpec decodes and validates an activity specification payload.
//
// Checks run in a fixed order: required fields, time window, participation
// limits, probability settings, prize list, then each prize. The first failure
// is returned as a *SpecificationError and nothing is built from the payload.
func ParseActivitySpec(payload []byte) (ActivitySpec, error) {
	if !gjson.ValidBytes(payload) {
		return ActivitySpec{}, specErrorf("", "payload is not valid JSON")
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return ActivitySpec{}, specErrorf("", "payload must be a JSON object")
	}
	for _, field := range requiredFields {
		if !root.Get(field).Exists() {
			return ActivitySpec{}, specErrorf(field, "missing required field")
		}
	}

	var spec ActivitySpec
	var err error
	if spec.Name, err = stringField(root, "name", "name"); err != nil {
		return ActivitySpec{}, err
	}
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return ActivitySpec{}, specErrorf("name", "must not be empty")
	}
	if spec.Description, err = stringField(root, "description", "description"); err != nil {
		return ActivitySpec{}, err
	}
	if spec.AllowedGroups, err = parseGroups(root.Get("allowed_groups")); err != nil {
		return ActivitySpec{}, err
	}

	if spec.StartTime, err = timeField(root, "start_time"); err != nil {
		return ActivitySpec{}, err
	}
	if spec.EndTime, err = timeField(root, "end_time"); err != nil {
		return ActivitySpec{}, err
	}
	if err := validateWindow(spec.StartTime, spec.EndTime); err != nil {
		return ActivitySpec{}, err
	}

	if spec.Limits, err = parseLimits(root.Get("participation_limits")); err != nil {
		return ActivitySpec{}, err
	}
	if spec.Probability, err = parseProbability(root.Get("probability_settings")); err != nil {
		return ActivitySpec{}, err
	}
	if spec.Strategy, err = parseStrategy(root.Get("selection_strategy")); err != nil {
		return ActivitySpec{}, err
	}

	prizes := root.Get("prizes")
	if !prizes.IsArray() {
		return ActivitySpec{}, specErrorf("prizes", "must be an array")
	}
	items := prizes.Array()
	if len(items) == 0 {
		return ActivitySpec{}, specErrorf("prizes", "must contain at least one prize")
	}
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		prize, err := parsePrize(i, item)
		if err != nil {
			return ActivitySpec{}, err
		}
		if seen[prize.Name] {
			return ActivitySpec{}, specErrorf(fmt.Sprintf("prizes[%d].name", i), "duplicate prize name %q", prize.Name)
		}
		seen[prize.Name] = true
		spec.Prizes = append(spec.Prizes, prize)
	}
	return spec, nil
}

// Validate checks a programmatically built spec against the same rules the
// parser enforces. A missing strategy is defaulted to weighted selection and
// remaining quantities are reset to the declared quantities.
func (s *ActivitySpec) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return specErrorf("name", "must not be empty")
	}
	if err := validateWindow(s.StartTime, s.EndTime); err != nil {
		return err
	}
	if err := validateLimits(s.Limits); err != nil {
		return err
	}
	if err := validateProbability(s.Probability); err != nil {
		return err
	}
	if s.Strategy == "" {
		s.Strategy = SelectionWeighted
	}
	if !s.Strategy.Valid() {
		return specErrorf("selection_strategy", "unknown strategy %q", s.Strategy)
	}
	if len(s.Prizes) == 0 {
		return specErrorf("prizes", "must contain at least one prize")
	}
	seen := make(map[string]bool, len(s.Prizes))
	totalWeight := 0
	for i := range s.Prizes {
		p := &s.Prizes[i]
		if err := validatePrize(i, *p); err != nil {
			return err
		}
		if p.Weight > MaxTotalWeight-totalWeight {
			return specErrorf(fmt.Sprintf("prizes[%d].weight", i), "total prize weight exceeds %d", MaxTotalWeight)
		}
		totalWeight += p.Weight
		if seen[p.Name] {
			return specErrorf(fmt.Sprintf("prizes[%d].name", i), "duplicate prize name %q", p.Name)
		}
		seen[p.Name] = true
		p.RemainingQuantity = p.Quantity
	}
	return nil
}

func stringField(obj gjson.Result, key, path string) (string, error) {
	r := obj.Get(key)
	if r.Type != gjson.String {
		return "", specErrorf(path, "must be a string")
	}
	return r.Str, nil
}

func timeField(obj gjson.Result, key string) (time.Time, error) {
	raw, err := stringField(obj, key, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, specErrorf(key, "invalid ISO-8601 timestamp %q", raw)
	}
	return t.UTC(), nil
}

func intField(obj gjson.Result, key, path string) (int, error) {
	r := obj.Get(key)
	if !r.Exists() {
		return 0, specErrorf(path, "missing required field")
	}
	if r.Type != gjson.Number || r.Num != math.Trunc(r.Num) {
		return 0, specErrorf(path, "must be an integer")
	}
	if math.Abs(r.Num) > math.MaxInt32 {
		return 0, specErrorf(path, "must be between %d and %d", math.MinInt32+1, math.MaxInt32)
	}
	return int(r.Int()), nil
}

func parseGroups(r gjson.Result) ([]string, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return []string{}, nil
	}
	if !r.IsArray() {
		return nil, specErrorf("allowed_groups", "must be an array")
	}
	groups := []string{}
	for i, g := range r.Array() {
		if g.Type != gjson.String && g.Type != gjson.Number {
			return nil, specErrorf(fmt.Sprintf("allowed_groups[%d]", i), "must be a string or number")
		}
		groups = append(groups, g.String())
	}
	return groups, nil
}

func parseLimits(r gjson.Result) (ParticipationLimits, error) {
	if !r.IsObject() {
		return ParticipationLimits{}, specErrorf("participation_limits", "must be an object")
	}
	var l ParticipationLimits
	var err error
	if l.MaxTotalParticipants, err = intField(r, "max_total_participants", "participation_limits.max_total_participants"); err != nil {
		return l, err
	}
	if l.MaxAttemptsPerUser, err = intField(r, "max_attempts_per_user", "participation_limits.max_attempts_per_user"); err != nil {
		return l, err
	}
	if l.MaxWinsPerUser, err = intField(r, "max_wins_per_user", "participation_limits.max_wins_per_user"); err != nil {
		return l, err
	}
	return l, validateLimits(l)
}

func parseProbability(r gjson.Result) (ProbabilitySettings, error) {
	if !r.IsObject() {
		return ProbabilitySettings{}, specErrorf("probability_settings", "must be an object")
	}
	mode := r.Get("probability_mode")
	if !mode.Exists() {
		return ProbabilitySettings{}, specErrorf("probability_settings.probability_mode", "missing required field")
	}
	if mode.Type != gjson.String {
		return ProbabilitySettings{}, specErrorf("probability_settings.probability_mode", "must be a string")
	}
	base := r.Get("base_probability")
	if !base.Exists() {
		return ProbabilitySettings{}, specErrorf("probability_settings.base_probability", "missing required field")
	}
	if base.Type != gjson.Number {
		return ProbabilitySettings{}, specErrorf("probability_settings.base_probability", "must be a number")
	}
	p := ProbabilitySettings{Mode: ProbabilityMode(mode.Str), BaseProbability: base.Num}
	return p, validateProbability(p)
}

func parseStrategy(r gjson.Result) (SelectionStrategy, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return SelectionWeighted, nil
	}
	if r.Type != gjson.String {
		return "", specErrorf("selection_strategy", "must be a string")
	}
	s := SelectionStrategy(r.Str)
	if !s.Valid() {
		return "", specErrorf("selection_strategy", "unknown strategy %q", r.Str)
	}
	return s, nil
}

func parsePrize(i int, r gjson.Result) (Prize, error) {
	path := func(field string) string { return fmt.Sprintf("prizes[%d].%s", i, field) }
	if !r.IsObject() {
		return Prize{}, specErrorf(fmt.Sprintf("prizes[%d]", i), "must be an object")
	}
	var p Prize
	var err error
	if p.Name, err = stringField(r, "name", path("name")); err != nil {
		return Prize{}, err
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Description, err = stringField(r, "description", path("description")); err != nil {
		return Prize{}, err
	}
	if img := r.Get("image_url"); img.Exists() && img.Type != gjson.Null {
		if p.ImageURL, err = stringField(r, "image_url", path("image_url")); err != nil {
			return Prize{}, err
		}
	}
	if p.Weight, err = intField(r, "weight", path("weight")); err != nil {
		return Prize{}, err
	}
	if p.Quantity, err = intField(r, "quantity", path("quantity")); err != nil {
		return Prize{}, err
	}
	if p.MaxWinPerUser, err = intField(r, "max_win_per_user", path("max_win_per_user")); err != nil {
		return Prize{}, err
	}
	if err := validatePrize(i, p); err != nil {
		return Prize{}, err
	}
	p.RemainingQuantity = p.Quantity
	return p, nil
}

func validateWindow(start, end time.Time) error {
	if !start.Before(end) {
		return specErrorf("end_time", "must be after start_time")
	}
	return nil
}

func validateLimits(l ParticipationLimits) error {
	if l.MaxTotalParticipants < 0 {
		return specErrorf("participation_limits.max_total_participants", "must be non-negative")
	}
	if l.MaxAttemptsPerUser < 0 {
		return specErrorf("participation_limits.max_attempts_per_user", "must be non-negative")
	}
	if l.MaxWinsPerUser < 0 {
		return specErrorf("participation_limits.max_wins_per_user", "must be non-negative")
	}
	return nil
}

func validateProbability(p ProbabilitySettings) error {
	if !p.Mode.Valid() {
		return specErrorf("probability_settings.probability_mode", "unknown mode %q (want fixed, dynamic or exhaust)", p.Mode)
	}
	if math.IsNaN(p.BaseProbability) || p.BaseProbability < 0 || p.BaseProbability > 1 {
		return specErrorf("probability_settings.base_probability", "must be within [0, 1]")
	}
	return nil
}

func validatePrize(i int, p Prize) error {
	path := func(field string) string { return fmt.Sprintf("prizes[%d].%s", i, field) }
	if strings.TrimSpace(p.Name) == "" {
		return specErrorf(path("name"), "must not be empty")
	}
	if p.Weight <= 0 {
		return specErrorf(path("weight"), "must be a positive integer")
	}
	if p.Quantity == 0 || p.Quantity < UnlimitedQuantity {
		return specErrorf(path("quantity"), "must be a positive integer or -1 for unlimited")
	}
	if p.MaxWinPerUser <= 0 {
		return specErrorf(path("max_win_per_user"), "must be a positive integer")
	}
	return nil
}
