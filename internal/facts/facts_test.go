package facts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/daymark/mandalagen/internal/calendar"
)

func obs(y, m, d int, views int64, keyword string) Observation {
	return Observation{
		Image:     "sunflower",
		Date:      calendar.Date{Year: y, Month: m, Day: d},
		ViewCount: views,
		Keyword:   keyword,
	}
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name    string
		earlier Observation
		later   Observation
		date    calendar.Date
		want    int64
	}{
		{
			name:    "midpoint",
			earlier: obs(2024, 1, 1, 100, "a"),
			later:   obs(2024, 1, 11, 200, "a"),
			date:    calendar.Date{Year: 2024, Month: 1, Day: 6},
			want:    150,
		},
		{
			name:    "uneven split rounds to nearest",
			earlier: obs(2024, 1, 1, 0, "a"),
			later:   obs(2024, 1, 4, 10, "a"),
			date:    calendar.Date{Year: 2024, Month: 1, Day: 2},
			want:    3, // 10/3 ≈ 3.33
		},
		{
			name:    "exact earlier date",
			earlier: obs(2024, 1, 5, 42, "a"),
			later:   obs(2024, 1, 9, 80, "a"),
			date:    calendar.Date{Year: 2024, Month: 1, Day: 5},
			want:    42,
		},
		{
			name:    "declining counts",
			earlier: obs(2024, 3, 1, 1000, "a"),
			later:   obs(2024, 3, 5, 600, "a"),
			date:    calendar.Date{Year: 2024, Month: 3, Day: 3},
			want:    800,
		},
		{
			name:    "same-day brackets",
			earlier: obs(2024, 1, 5, 7, "a"),
			later:   obs(2024, 1, 5, 7, "a"),
			date:    calendar.Date{Year: 2024, Month: 1, Day: 5},
			want:    7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := interpolate(tt.earlier, tt.later, tt.date)
			if got != tt.want {
				t.Errorf("interpolate = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	date := calendar.Date{Year: 2024, Month: 1, Day: 6}
	earlier := obs(2024, 1, 1, 100, "rose")
	later := obs(2024, 1, 11, 200, "tulip")

	daily, err := resolve(&earlier, &later, date)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if daily.ViewCount != 150 {
		t.Errorf("ViewCount = %d, want 150", daily.ViewCount)
	}
	// Keyword comes from the most recent prior observation.
	if daily.Keyword != "rose" {
		t.Errorf("Keyword = %q, want rose", daily.Keyword)
	}

	// Only one bracket present.
	daily, err = resolve(&earlier, nil, date)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if daily.ViewCount != 100 || daily.Keyword != "rose" {
		t.Errorf("earlier-only resolve = %+v", daily)
	}

	daily, err = resolve(nil, &later, date)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if daily.ViewCount != 200 || daily.Keyword != "tulip" {
		t.Errorf("later-only resolve = %+v", daily)
	}

	// No history at all.
	if _, err := resolve(nil, nil, date); !errors.Is(err, ErrNoObservations) {
		t.Errorf("expected ErrNoObservations, got %v", err)
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()
	date := calendar.Date{Year: 2024, Month: 7, Day: 9}
	p.Set("sunflower", date, Daily{ViewCount: 12345, Keyword: "rose"})

	daily, err := p.FactsFor(context.Background(), "sunflower", date)
	if err != nil {
		t.Fatalf("FactsFor failed: %v", err)
	}
	if daily.ViewCount != 12345 || daily.Keyword != "rose" {
		t.Errorf("FactsFor = %+v", daily)
	}

	_, err = p.FactsFor(context.Background(), "sunflower", calendar.Date{Year: 2024, Month: 7, Day: 10})
	if !errors.Is(err, ErrNoObservations) {
		t.Errorf("expected ErrNoObservations, got %v", err)
	}
}

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("image") != "sunflower" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"view_count": 777,
			"keyword":    "peony",
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	daily, err := p.FactsFor(context.Background(), "sunflower", calendar.Date{Year: 2024, Month: 7, Day: 9})
	if err != nil {
		t.Fatalf("FactsFor failed: %v", err)
	}
	if daily.ViewCount != 777 || daily.Keyword != "peony" {
		t.Errorf("FactsFor = %+v", daily)
	}
}
