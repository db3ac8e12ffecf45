package patientview

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/patientview/internal/domain/patient"
	"github.com/ehr/patientview/internal/platform/timeline"
)

// SiteRules configure how a request is mapped to its special contexts.
type SiteRules struct {
	ConsortiumMarker string
	ToxicityHosts    []string
	Demo             *DemoFixture
}

// SiteContext lists the special contexts active for one page view. They are
// independent of each other.
type SiteContext struct {
	ConsortiumStudy bool `json:"consortium_study"`
	DemoPatient     bool `json:"demo_patient"`
	ToxicityPortal  bool `json:"toxicity_portal"`
}

// DetectSiteContext derives the site context from the page's study, patient,
// request host and full URL.
func DetectSiteContext(rules SiteRules, studyID, patientID, host, rawURL string) SiteContext {
	var sc SiteContext
	if m := rules.ConsortiumMarker; m != "" {
		sc.ConsortiumStudy = strings.Contains(rawURL, m) || strings.Contains(studyID, m)
	}
	if d := rules.Demo; d != nil {
		inURL := strings.Contains(rawURL, d.StudyID) && strings.Contains(rawURL, d.PatientID)
		sc.DemoPatient = inURL || (studyID == d.StudyID && patientID == d.PatientID)
	}
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	for _, h := range rules.ToxicityHosts {
		if strings.EqualFold(h, hostname) {
			sc.ToxicityPortal = true
			break
		}
	}
	return sc
}

var baseSortOrder = []string{
	"Specimen", "Surgery", "Med Onc Assessment", "Status", "Diagnostics",
	"Diagnostic", "Imaging", "Lab_test", "Treatment",
}

var consortiumSortOrder = []string{
	"Sample acquisition", "Sequencing", "Surgery", "Med Onc Assessment", "Status",
	"Diagnostics", "Diagnostic", "Imaging", "Lab_test", "Treatment",
}

const (
	sampleIDAttribute   = "SAMPLE_ID"
	styleColorAttribute = "STYLE_COLOR"
	labValueAttribute   = "VALUE"
)

// BuildBaseConfig returns the track configuration shared by every site:
// sample events take the sample's color and label, treatments and lab tests
// are nested, and PSA is drawn as a line chart.
func BuildBaseConfig(sm *patient.SampleManager, caseMetaData patient.SampleMetaData) *timeline.Config {
	meta := caseMetaData
	if sm != nil {
		meta = sm.MetaData(caseMetaData)
	}

	cfg := &timeline.Config{
		SortOrder: append([]string(nil), baseSortOrder...),
		TrackStructures: [][]string{
			{"TREATMENT", "TREATMENT_TYPE", "SUBTYPE", "AGENT"},
			{"LAB_TEST", "TEST"},
		},
		EventColorGetter: func(it *timeline.Item) string {
			v, _ := it.Event.Attr(styleColorAttribute)
			return v
		},
	}

	cfg.AddRenderer("samples", `(?i)^(SPECIMEN|SAMPLE ACQUISITION|SEQUENCING)$`, func(t *timeline.TrackSpecification) {
		for _, it := range t.Items {
			id, ok := it.Event.Attr(sampleIDAttribute)
			if !ok {
				continue
			}
			if c, ok := meta.Color[id]; ok {
				it.Color = c
			}
			if l, ok := meta.Label[id]; ok {
				it.Label = l
			}
		}
	})

	cfg.AddRenderer("psa", `(?i)^LAB_TEST$`, func(t *timeline.TrackSpecification) {
		for _, child := range t.Tracks {
			if strings.EqualFold(child.Type, "PSA") {
				child.TrackType = timeline.TrackTypeLineChart
				child.ValueKey = labValueAttribute
			}
		}
	})
	return cfg
}

var medOncColors = map[string]string{
	"IMPROVING":     "#00C000",
	"STABLE":        "gray",
	"MIXED":         "#FFA500",
	"WORSENING":     "#FF0000",
	"INDETERMINATE": "#00BFFF",
}

// ConfigureConsortiumTimeline reorders tracks so sample acquisition and
// sequencing lead, nests diagnostics and imaging by subtype and colors medical
// oncology assessments by their recorded tumor course.
func ConfigureConsortiumTimeline(cfg *timeline.Config) {
	cfg.SortOrder = append([]string(nil), consortiumSortOrder...)
	cfg.TrackStructures = append(cfg.TrackStructures,
		[]string{"DIAGNOSTICS", "SUBTYPE"},
		[]string{"IMAGING", "SUBTYPE"},
		[]string{"STATUS", "STATUS"},
	)
	cfg.AddRenderer("med-onc-assessment", `(?i)^MED ONC ASSESSMENT$`, func(t *timeline.TrackSpecification) {
		for _, it := range t.Items {
			v, _ := it.Event.Attr("CURATED_CANCER_STATUS")
			if c, ok := medOncColors[strings.ToUpper(strings.TrimSpace(v))]; ok {
				it.Color = c
			}
		}
	})
}

// ConfigureDemoTimeline links and labels the fixture's track.
func ConfigureDemoTimeline(cfg *timeline.Config, fixture *DemoFixture) {
	if fixture == nil {
		return
	}
	opts := fixture.Track
	pattern := `(?i)^` + regexp.QuoteMeta(opts.Type) + `$`
	cfg.AddRenderer("demo", pattern, func(t *timeline.TrackSpecification) {
		if opts.Color != "" {
			t.Color = opts.Color
		}
		for _, it := range t.Items {
			if v, ok := it.Event.Attr(opts.LinkAttribute); ok && opts.LinkAttribute != "" {
				it.Link = v
			}
			if v, ok := it.Event.Attr(opts.LabelAttribute); ok && opts.LabelAttribute != "" {
				it.Label = v
			}
			if opts.Color != "" {
				it.Color = opts.Color
			}
		}
	})
}

// toxicityGradeColors maps CTCAE grades 1 through 5 to colors.
var toxicityGradeColors = map[string]string{
	"1": "#ffe066",
	"2": "#ffa94d",
	"3": "#ff6b6b",
	"4": "#c92a2a",
	"5": "#000000",
}

var toxicityGradeAttributes = []string{"GRADE", "TOXICITY_GRADE", "CTCAE_GRADE"}

// ConfigureToxicityColors colors every graded event by its toxicity grade.
// Ungraded events keep the color from the previous getter.
func ConfigureToxicityColors(cfg *timeline.Config) {
	prev := cfg.EventColorGetter
	cfg.EventColorGetter = func(it *timeline.Item) string {
		if c := ToxicityColor(it.Event); c != "" {
			return c
		}
		if prev != nil {
			return prev(it)
		}
		return ""
	}
}

// ToxicityColor returns the grade color of an event, or "" if it has no
// recognised grade.
func ToxicityColor(e timeline.ClinicalEvent) string {
	for _, key := range toxicityGradeAttributes {
		v, ok := e.Attr(key)
		if !ok {
			continue
		}
		v = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(v)), "GRADE ")
		if c, ok := toxicityGradeColors[v]; ok {
			return c
		}
	}
	return ""
}

// TimelineInput is everything InitTimeline needs for one patient.
type TimelineInput struct {
	Events        []patient.ClinicalEvent
	SampleManager *patient.SampleManager
	CaseMetaData  patient.SampleMetaData
	Site          SiteContext
	Demo          *DemoFixture
}

// Timeline is an initialized timeline: the store the page renders and the
// events it was built from, including any synthetic ones.
type Timeline struct {
	Store   *timeline.Store
	Events  []timeline.ClinicalEvent
	Applied []string
}

// InitTimeline runs the adapters in a fixed order (base, consortium, demo,
// toxicity) and builds the timeline store. The input events are not
// modified.
func InitTimeline(in TimelineInput) (*Timeline, error) {
	cfg := BuildBaseConfig(in.SampleManager, in.CaseMetaData)
	applied := []string{"base"}

	events := patient.TimelineEvents(in.Events)

	if in.Site.ConsortiumStudy {
		ConfigureConsortiumTimeline(cfg)
		applied = append(applied, "consortium")
	}
	if in.Site.DemoPatient && in.Demo != nil {
		events = append(events, in.Demo.ClinicalEvent().ToTimeline())
		ConfigureDemoTimeline(cfg, in.Demo)
		applied = append(applied, "demo")
	}
	if in.Site.ToxicityPortal {
		ConfigureToxicityColors(cfg)
		applied = append(applied, "toxicity")
	}

	tracks := timeline.SortTracks(cfg, events)
	if err := timeline.ConfigureTracks(tracks, cfg); err != nil {
		return nil, fmt.Errorf("configure timeline tracks: %w", err)
	}
	return &Timeline{Store: timeline.NewStore(tracks), Events: events, Applied: applied}, nil
}

// logApplied records which adapters shaped a patient's timeline.
func logApplied(logger zerolog.Logger, studyID, patientID string, tl *Timeline) {
	logger.Debug().
		Str("study_id", studyID).
		Str("patient_id", patientID).
		Strs("adapters", tl.Applied).
		Int("events", tl.Store.EventCount()).
		Msg("timeline initialized")
}
