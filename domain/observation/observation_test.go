package observation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"fieldtrial/domain/core"
	"fieldtrial/domain/phenotype"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver struct {
	variables   map[core.ID]*phenotype.MeasuredVariable
	instruments map[core.ID]*phenotype.Instrument
}

func (r *mapResolver) ResolvePhenotype(_ context.Context, id core.ID) (PhenotypeRef, error) {
	mv, ok := r.variables[id]
	if !ok {
		return nil, core.NewNotFoundError("measured variable", id)
	}
	return Borrow(mv), nil
}

func (r *mapResolver) ResolveInstrument(_ context.Context, id core.ID) (*phenotype.Instrument, error) {
	in, ok := r.instruments[id]
	if !ok {
		return nil, core.NewNotFoundError("instrument", id)
	}
	return in, nil
}

func variable(id core.ID, name string, scale phenotype.ScaleClass) *phenotype.MeasuredVariable {
	return &phenotype.MeasuredVariable{
		ID:         id,
		Trait:      phenotype.SchemaTerm{Name: name + " trait"},
		Unit:       phenotype.SchemaTerm{Name: "unit"},
		Variable:   phenotype.SchemaTerm{Name: name},
		ScaleClass: scale,
	}
}

func testResolver() *mapResolver {
	return &mapResolver{
		variables: map[core.ID]*phenotype.MeasuredVariable{
			"mv-num":  variable("mv-num", "Height", phenotype.ScaleNumeric),
			"mv-int":  variable("mv-int", "Tiller count", phenotype.ScaleInteger),
			"mv-str":  variable("mv-str", "Disease note", phenotype.ScaleText),
			"mv-time": variable("mv-time", "Heading date", phenotype.ScaleDate),
		},
		instruments: map[core.ID]*phenotype.Instrument{
			"inst-1": {ID: "inst-1", Name: "Ruler", Manufacturer: "Acme"},
		},
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestResolveIsTotal(t *testing.T) {
	tests := []struct {
		scale phenotype.ScaleClass
		want  Kind
	}{
		{phenotype.ScaleNumeric, KindNumeric},
		{phenotype.ScaleInteger, KindInteger},
		{phenotype.ScaleUnsignedInteger, KindInteger},
		{phenotype.ScaleString, KindString},
		{phenotype.ScaleText, KindString},
		{phenotype.ScaleCode, KindString},
		{phenotype.ScaleTime, KindTime},
		{phenotype.ScaleDate, KindTime},
		{phenotype.ScaleNominal, KindUnsupported},
		{phenotype.ScaleDuration, KindUnsupported},
		{phenotype.ScaleClass(""), KindUnsupported},
		{phenotype.ScaleClass("colour"), KindUnsupported},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(tt.scale), string(tt.scale))
		assert.Equal(t, tt.want, Resolve(tt.scale), "resolve must be pure")
	}
}

func TestNewRejectsUnsupportedScale(t *testing.T) {
	mv := variable("mv-nom", "Colour", phenotype.ScaleNominal)
	_, _, err := New(Params{Phenotype: Borrow(mv), Raw: "red"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnsupportedScaleClass))
}

func TestNewReportsFieldFailureButKeepsOtherValue(t *testing.T) {
	var reported FieldErrors
	mv := variable("mv-num", "Height", phenotype.ScaleNumeric)

	obs, fieldErrs, err := New(Params{
		Phenotype: Borrow(mv),
		Raw:       "tall",
		Corrected: "12.5",
		Location:  "Sheet1!C4",
	}, &reported)

	require.NoError(t, err)
	require.Len(t, fieldErrs, 1)
	require.Len(t, reported, 1)
	assert.Equal(t, FieldRaw, reported[0].Field)
	assert.Equal(t, "tall", reported[0].Value)
	assert.Equal(t, "Sheet1!C4", reported[0].Location)
	assert.True(t, errors.Is(reported[0], core.ErrInvalidValue))

	assert.False(t, obs.Value().Has(Raw))
	assert.Equal(t, "12.5", obs.ValueAsString(Corrected).String())
	assert.Equal(t, uint32(DefaultIndex), obs.Metadata.Index)
	assert.False(t, obs.ID.IsEmpty())
}

func TestNewFailsWhenNoValueCanBeStored(t *testing.T) {
	mv := variable("mv-int", "Tiller count", phenotype.ScaleInteger)

	_, _, err := New(Params{Phenotype: Borrow(mv)}, nil)
	assert.True(t, errors.Is(err, core.ErrNoValues))

	var reported FieldErrors
	_, fieldErrs, err := New(Params{Phenotype: Borrow(mv), Raw: "x", Corrected: 2.5}, &reported)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoValues))
	assert.Len(t, fieldErrs, 2)
	assert.Len(t, reported, 2)

	_, _, err = New(Params{Phenotype: Borrow(mv), Raw: "", Corrected: nil}, nil)
	assert.True(t, errors.Is(err, core.ErrNoValues), "empty strings count as absent")
}

func TestStorageRoundTrip(t *testing.T) {
	resolver := testResolver()
	start := ptrTime(time.Date(2021, 6, 14, 0, 0, 0, 0, time.UTC))
	end := ptrTime(time.Date(2021, 6, 20, 9, 30, 0, 500_000_000, time.UTC))

	values := map[core.ID][2]any{
		"mv-num":  {12.5, 9.0},
		"mv-int":  {float64(42), float64(40)},
		"mv-str":  {"N/A", "lodged"},
		"mv-time": {"2021-07-01", "2021-07-03"},
	}
	presence := []struct {
		name           string
		raw, corrected bool
	}{
		{"raw only", true, false},
		{"corrected only", false, true},
		{"both", true, true},
	}

	for id, pair := range values {
		for _, pr := range presence {
			t.Run(string(id)+"/"+pr.name, func(t *testing.T) {
				p := Params{
					Phenotype:   Borrow(resolver.variables[id]),
					Instrument:  resolver.instruments["inst-1"],
					Metadata:    Metadata{StartDate: start, EndDate: end, Index: 3},
					GrowthStage: "GS55",
					Method:      "visual",
					Notes:       "windy",
					Nature:      NatureExperimentalArea,
				}
				if pr.raw {
					p.Raw = pair[0]
				}
				if pr.corrected {
					p.Corrected = pair[1]
				}
				original, _, err := New(p, nil)
				require.NoError(t, err)

				stored := original.ToJSON(core.ViewStorage)
				assert.Contains(t, stored, FieldRaw)
				assert.Contains(t, stored, FieldCorrected)

				encoded, err := json.Marshal(stored)
				require.NoError(t, err)
				var decoded core.Document
				require.NoError(t, json.Unmarshal(encoded, &decoded))

				restored, fieldErrs, err := FromJSON(context.Background(), decoded, resolver, nil)
				require.NoError(t, err)
				assert.Empty(t, fieldErrs)

				assert.Equal(t, original.ID, restored.ID)
				assert.Equal(t, original.Kind(), restored.Kind())
				assert.Equal(t, original.PhenotypeID(), restored.PhenotypeID())
				assert.Equal(t, original.Metadata.Index, restored.Metadata.Index)
				assert.True(t, original.Metadata.StartDate.Equal(*restored.Metadata.StartDate))
				assert.True(t, original.Metadata.EndDate.Equal(*restored.Metadata.EndDate))
				assert.Equal(t, original.GrowthStage, restored.GrowthStage)
				assert.Equal(t, original.Method, restored.Method)
				assert.Equal(t, original.Notes, restored.Notes)
				assert.Equal(t, original.Nature, restored.Nature)
				assert.Equal(t, original.Instrument, restored.Instrument)
				assert.Equal(t, original.Value(), restored.Value())
				assert.Equal(t, stored, restored.ToJSON(core.ViewStorage))
			})
		}
	}
}

func TestStorageKeepsSubSecondDates(t *testing.T) {
	resolver := testResolver()
	start := ptrTime(time.Date(2022, 5, 1, 10, 30, 0, 500_000_000, time.UTC))
	end := ptrTime(time.Date(2022, 5, 1, 10, 45, 0, 123_456_789, time.UTC))
	original, _, err := New(Params{
		Phenotype: Borrow(resolver.variables["mv-num"]),
		Raw:       1.5,
		Metadata:  Metadata{StartDate: start, EndDate: end},
	}, nil)
	require.NoError(t, err)

	stored := original.ToJSON(core.ViewStorage)
	assert.Equal(t, "2022-05-01T10:30:00.5Z", stored[KeyStartDate])
	assert.Equal(t, "2022-05-01T10:45:00.123456789Z", stored[KeyEndDate])

	encoded, err := json.Marshal(stored)
	require.NoError(t, err)
	var decoded core.Document
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	restored, _, err := FromJSON(context.Background(), decoded, resolver, nil)
	require.NoError(t, err)
	assert.True(t, start.Equal(*restored.Metadata.StartDate), "got %v", restored.Metadata.StartDate)
	assert.True(t, end.Equal(*restored.Metadata.EndDate), "got %v", restored.Metadata.EndDate)
}

func TestClientViewsOnlyWritePresentValues(t *testing.T) {
	resolver := testResolver()
	obs, _, err := New(Params{
		Phenotype:  Borrow(resolver.variables["mv-num"]),
		Instrument: resolver.instruments["inst-1"],
		Raw:        9.0,
	}, nil)
	require.NoError(t, err)

	full := obs.ToJSON(core.ViewClientFull)
	assert.Equal(t, 9.0, full[FieldRaw])
	assert.NotContains(t, full, FieldCorrected)
	assert.NotContains(t, full, KeyPhenotypeID)
	assert.NotContains(t, full, KeyID)
	assert.Contains(t, full[KeyPhenotype], "trait")
	assert.Contains(t, full, KeyInstrument)

	minimal := obs.ToJSON(core.ViewClientMinimal)
	assert.NotContains(t, minimal[KeyPhenotype], "trait")
	assert.Equal(t, "Height", minimal[KeyPhenotype].(core.Document)["name"])
	assert.NotContains(t, minimal, KeyInstrument)

	storage := obs.ToJSON(core.ViewStorage)
	assert.Nil(t, storage[FieldCorrected])
	assert.Contains(t, storage, FieldCorrected)
}

func TestFromClientFullOwnsEmbeddedVariable(t *testing.T) {
	resolver := testResolver()
	src, _, err := New(Params{Phenotype: Borrow(resolver.variables["mv-num"]), Corrected: 4.0}, nil)
	require.NoError(t, err)

	obs, _, err := FromJSON(context.Background(), src.ToJSON(core.ViewClientFull), nil, nil)
	require.NoError(t, err)
	mv := obs.Phenotype()
	assert.Equal(t, core.ID("mv-num"), mv.ID)
	assert.NotSame(t, resolver.variables["mv-num"], mv)

	obs.Release()
	assert.Equal(t, "", mv.Name(), "owned variables are cleared with their observation")
	assert.Equal(t, "Height", resolver.variables["mv-num"].Name())
}

func TestFromJSONRejectsKindMismatch(t *testing.T) {
	doc := core.Document{
		KeyPhenotypeID: "mv-num",
		KeyValueType:   "string",
		FieldRaw:       "12",
	}
	_, _, err := FromJSON(context.Background(), doc, testResolver(), nil)
	assert.True(t, errors.Is(err, core.ErrKindMismatch))
}

func TestFromJSONRejectsBadIndex(t *testing.T) {
	doc := core.Document{KeyPhenotypeID: "mv-num", KeyIndex: 0.0, FieldRaw: 1.0}
	_, _, err := FromJSON(context.Background(), doc, testResolver(), nil)
	assert.True(t, core.IsValidationError(err))
}

func TestSetValueNullHandling(t *testing.T) {
	for _, kind := range []Kind{KindNumeric, KindInteger, KindString, KindTime} {
		v, err := NewValue(kind)
		require.NoError(t, err)

		seed := map[Kind]string{KindNumeric: "1.5", KindInteger: "7", KindString: "x", KindTime: "2020-01-02"}[kind]
		require.NoError(t, v.SetFromString(Raw, seed))
		require.NoError(t, v.SetFromString(Corrected, seed))

		assert.NoError(t, v.SetFromString(Raw, ""), kind.String())
		assert.False(t, v.Has(Raw), kind.String())
		assert.NoError(t, v.SetFromJSON(Corrected, nil), kind.String())
		assert.False(t, v.Has(Corrected), kind.String())

		v.Clear()
		v.Clear()
		assert.False(t, v.Has(Raw))
	}
}

func TestMalformedInputLeavesValueUnchanged(t *testing.T) {
	tests := []struct {
		kind Kind
		good any
		bad  any
	}{
		{KindNumeric, 3.25, "three"},
		{KindNumeric, 3.25, true},
		{KindInteger, float64(3), 3.5},
		{KindInteger, float64(3), "3.5"},
		{KindInteger, float64(3), float64(1 << 40)},
		{KindString, "ok", 12.0},
		{KindTime, "2020-05-01", "01/05/2020"},
		{KindTime, "2020-05-01", 20200501.0},
	}
	for _, tt := range tests {
		v, err := NewValue(tt.kind)
		require.NoError(t, err)
		require.NoError(t, v.SetFromJSON(Raw, tt.good))
		before := v.Render(Raw).String()

		err = v.SetFromJSON(Raw, tt.bad)
		assert.True(t, errors.Is(err, core.ErrInvalidValue), "%s %v", tt.kind, tt.bad)
		assert.Equal(t, before, v.Render(Raw).String())
	}
}

func TestIntegerAcceptsIntegralEncodings(t *testing.T) {
	for _, node := range []any{float64(3), "3", "3.0", " 3.00 ", json.Number("3"), json.Number("3.0"), json.Number("3e0")} {
		v := &IntegerValue{}
		require.NoError(t, v.SetFromJSON(Raw, node), "%#v", node)
		assert.Equal(t, "3", v.Render(Raw).String(), "%#v", node)
	}

	for _, node := range []any{"3.5", json.Number("3.5"), "NaN", "Inf", json.Number("1e10")} {
		v := &IntegerValue{}
		err := v.SetFromJSON(Raw, node)
		assert.True(t, errors.Is(err, core.ErrInvalidValue), "%#v", node)
	}
}

func TestNumericAcceptsNumbersAndStrings(t *testing.T) {
	v := &NumericValue{}
	require.NoError(t, v.SetFromJSON(Raw, json.Number("2.75")))
	require.NoError(t, v.SetFromJSON(Corrected, " 3 "))
	assert.Equal(t, 2.75, *v.Raw)
	assert.Equal(t, 3.0, *v.Corrected)

	x, ok := v.Preferred()
	assert.True(t, ok)
	assert.Equal(t, 3.0, x)
}

func TestTimeAcceptsDateTimes(t *testing.T) {
	v := &TimeValue{}
	require.NoError(t, v.SetFromJSON(Raw, "2021-06-14T15:04:05Z"))
	assert.Equal(t, civil.Date{Year: 2021, Month: time.June, Day: 14}, *v.Raw)

	doc := core.Document{}
	assert.Equal(t, 2, v.AddToJSON("r", "c", doc, nil, false))
	assert.Equal(t, "2021-06-14", doc["r"])
	assert.Nil(t, doc["c"])

	doc = core.Document{}
	assert.Equal(t, 1, v.AddToJSON("r", "c", doc, nil, true))
	assert.NotContains(t, doc, "c")
}

func TestRenderOwnership(t *testing.T) {
	s := &StringValue{}
	require.NoError(t, s.SetFromString(Raw, "N/A"))

	corrected := s.Render(Corrected)
	assert.False(t, corrected.Present())
	assert.Equal(t, Borrowed, corrected.Ownership)

	raw := s.Render(Raw)
	assert.Equal(t, "N/A", raw.String())
	assert.Equal(t, Borrowed, raw.Ownership)
	assert.Same(t, s.Raw, raw.Text, "borrowed text aliases storage")

	n := &NumericValue{}
	require.NoError(t, n.SetFromString(Raw, "12.5"))
	r := n.Render(Raw)
	assert.Equal(t, Owned, r.Ownership)
	assert.Equal(t, "12.5", r.String())

	i := &IntegerValue{}
	require.NoError(t, i.SetFromString(Corrected, "-4"))
	assert.Equal(t, Owned, i.Render(Corrected).Ownership)
	assert.Equal(t, "-4", i.Render(Corrected).String())

	d := &TimeValue{}
	require.NoError(t, d.SetFromString(Raw, "2020-02-29"))
	assert.Equal(t, Owned, d.Render(Raw).Ownership)
	assert.Equal(t, "2020-02-29", d.Render(Raw).String())
}

func TestMatches(t *testing.T) {
	resolver := testResolver()
	morning := ptrTime(time.Date(2021, 6, 14, 8, 0, 0, 0, time.UTC))
	evening := ptrTime(time.Date(2021, 6, 14, 20, 0, 0, 0, time.UTC))
	nextDay := ptrTime(time.Date(2021, 6, 15, 8, 0, 0, 0, time.UTC))

	build := func(id core.ID, start *time.Time, index uint32, raw any) *Observation {
		obs, _, err := New(Params{
			Phenotype: Borrow(resolver.variables[id]),
			Metadata:  Metadata{StartDate: start, Index: index},
			Raw:       raw,
		}, nil)
		require.NoError(t, err)
		return obs
	}

	a := build("mv-num", morning, 1, 1.0)
	tests := []struct {
		name string
		b    *Observation
		want bool
	}{
		{"same slot different value and time of day", build("mv-num", evening, 1, 99.0), true},
		{"default index equals explicit 1", build("mv-num", morning, 0, 2.0), true},
		{"different day", build("mv-num", nextDay, 1, 1.0), false},
		{"different index", build("mv-num", morning, 2, 1.0), false},
		{"different variable", build("mv-int", morning, 1, 1.0), false},
		{"missing start date", build("mv-num", nil, 1, 1.0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Matches(tt.b))
			assert.Equal(t, a.Matches(tt.b), tt.b.Matches(a), "matching is symmetric")
		})
	}
}

func TestReleaseRespectsOwnership(t *testing.T) {
	borrowed := variable("mv-b", "Borrowed", phenotype.ScaleNumeric)
	obs, _, err := New(Params{Phenotype: Borrow(borrowed), Raw: 1.0}, nil)
	require.NoError(t, err)
	obs.Release()
	obs.Release()
	assert.Equal(t, "Borrowed", borrowed.Name())
	assert.False(t, obs.Value().Has(Raw))

	owned := variable("mv-o", "Owned", phenotype.ScaleNumeric)
	obs, _, err = New(Params{Phenotype: Own(owned), Raw: 1.0}, nil)
	require.NoError(t, err)
	obs.Release()
	assert.Equal(t, "", owned.Name())

	resolver := testResolver()
	cache := phenotype.NewCache(loaderFunc(func(id core.ID) (*phenotype.MeasuredVariable, error) {
		return resolver.variables[id], nil
	}))
	h1, err := cache.Acquire(context.Background(), "mv-num")
	require.NoError(t, err)
	h2, err := cache.Acquire(context.Background(), "mv-num")
	require.NoError(t, err)

	first, _, err := New(Params{Phenotype: Share(h1), Raw: 1.0}, nil)
	require.NoError(t, err)
	second, _, err := New(Params{Phenotype: Share(h2), Raw: 2.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Refs("mv-num"))

	first.Release()
	assert.Equal(t, 1, cache.Refs("mv-num"))
	assert.Equal(t, "Height", second.Phenotype().Name())
	second.Release()
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, "Height", resolver.variables["mv-num"].Name(), "shared variables are never cleared")
}

func TestFailedConstructionReleasesReference(t *testing.T) {
	resolver := testResolver()
	cache := phenotype.NewCache(loaderFunc(func(id core.ID) (*phenotype.MeasuredVariable, error) {
		return resolver.variables[id], nil
	}))
	h, err := cache.Acquire(context.Background(), "mv-num")
	require.NoError(t, err)

	_, _, err = New(Params{Phenotype: Share(h)}, nil)
	require.Error(t, err)
	assert.Equal(t, 0, cache.Refs("mv-num"))
}

type loaderFunc func(id core.ID) (*phenotype.MeasuredVariable, error)

func (f loaderFunc) GetByID(_ context.Context, id core.ID) (*phenotype.MeasuredVariable, error) {
	return f(id)
}
