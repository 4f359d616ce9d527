package profile

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/statloom-cli/internal/dataset"
)

var csvRows = []string{
	"Group;Concentration (g/L);Temp (°F);Score;LocaleNumber;Category;Note",
	"A;0,5;70;10,0;1.000,0;alpha;first",
	"A;0,6;71;11,0;1.100,0;alpha;second",
	"A;0,55;69;9,5;0.900,0;beta;third",
	"B;0,7;75;10,5;1.050,0;alpha;fourth",
	"B;0,65;74;9,8;0.980,0;beta;fifth",
	"B;0,68;73;10,2;1.020,0;alpha;sixth",
	"A;0,52;68;8,8;0.880,0;gamma;seventh",
	"B;0,75;76;9,7;0.970,0;beta;eighth",
	"A;3,0;95;50,0;5.000,0;alpha;ninth",
	"B;0,66;72;10,1;1.010,0;gamma;tenth",
}

var (
	processedConcentration = []float64{
		mgPerL(0.5), mgPerL(0.6), mgPerL(0.55), mgPerL(0.7), mgPerL(0.65), mgPerL(0.68), mgPerL(0.52), mgPerL(0.75), mgPerL(3.0),
	}
	processedTemp = []float64{
		toC(70), toC(71), toC(69), toC(75), toC(74), toC(73), toC(68), toC(76), toC(95),
	}
	processedScore  = []float64{10, 11, 9.5, 10.5, 9.8, 10.2, 8.8, 9.7, 50}
	processedLocale = []float64{1000, 1100, 900, 1050, 980, 1020, 880, 970, 5000}
)

func loadFixture(t *testing.T) *dataset.Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(csvRows, "\n")), 0o644))
	tbl, err := dataset.Load(path, dataset.Options{Delimiter: ';', Locale: dataset.Locale{Decimal: ',', Thousands: '.'}})
	require.NoError(t, err)
	return tbl
}

func fixtureOptions() Options {
	opt := DefaultOptions()
	opt.SampleRows = 3
	opt.MaxRows = 9
	opt.GroupBy = []string{"Group"}
	opt.Correlations = true
	opt.CorrPerGroup = true
	opt.Outliers = true
	return opt
}

func TestBuildAndMarkdown(t *testing.T) {
	rep, err := Build(loadFixture(t), fixtureOptions())
	require.NoError(t, err)
	assertReport(t, rep)

	md := rep.Markdown()
	for _, want := range []string{
		"[DATASET SUMMARY]",
		"File: metrics.csv",
		"Rows: ~10 (processed 9)",
		"Concentration [mg/L]: numeric",
		"outliers: 1 above |z|>3.5",
		"[GROUP-BY SUMMARY]",
		"Group=A (n=5)",
		"[PER-GROUP CORRELATIONS]",
		"[CORRELATIONS]",
		"- Score ~ LocaleNumber: r=1.000",
		"| Group | Concentration | Temp |",
		"[NOTES]",
		"processed only 9/10 rows due to MaxRows",
	} {
		assert.Contains(t, md, want)
	}
}

func TestBuildWithoutGroupsOrCorrelations(t *testing.T) {
	rep, err := Build(loadFixture(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, rep.Processed)
	assert.Empty(t, rep.Warnings)
	assert.Nil(t, rep.Corr)
	assert.Empty(t, rep.Groups)
	conc := columnByName(t, rep, "Concentration")
	assert.Equal(t, "g/L", conc.Unit, "no normalisation without UnitNormalize")
	assert.InDelta(t, 3.0, conc.Max, 1e-12)
	assert.Zero(t, conc.OutlierThreshold)

	md := rep.Markdown()
	assert.Contains(t, md, "Rows: 10\n")
	assert.NotContains(t, md, "[CORRELATIONS]")
	assert.NotContains(t, md, "[NOTES]")
}

func TestBuildUnknownGroupColumn(t *testing.T) {
	opt := fixtureOptions()
	opt.GroupBy = []string{"Grp"}
	_, err := Build(loadFixture(t), opt)
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrColumnNotFound)
	assert.Contains(t, err.Error(), `did you mean "Group"`)
}

func TestMissingAndTextColumns(t *testing.T) {
	long := strings.Repeat("observed heavy sediment after rainfall ", 3)
	tbl := dataset.NewTable("field", []string{"Site", "Remark", "pH"}, [][]string{
		{"S1", long, "7,1"},
		{"S2", long + "again", ""},
		{"S3", "", "6,8"},
		{"S4", long + "twice", "n/a"},
	}, dataset.Locale{Decimal: ','})
	rep, err := Build(tbl, DefaultOptions())
	require.NoError(t, err)

	ph := columnByName(t, rep, "pH")
	assert.Equal(t, 2, ph.NonNull)
	assert.Equal(t, 2, ph.Missing)
	assert.InDelta(t, 6.95, ph.Mean, 1e-12)
	assert.Zero(t, ph.OutlierThreshold, "fewer than eight values skip outlier screening")

	remark := columnByName(t, rep, "Remark")
	assert.Equal(t, dataset.KindText, remark.Kind)
	assert.Len(t, remark.ExampleTexts, 3)

	md := rep.Markdown()
	assert.Contains(t, md, "- pH: numeric (non-null 2, missing 50.0%)")
	assert.Contains(t, md, "- Site: categorical")
	assert.Contains(t, md, "- Remark: text (non-null 3, missing 25.0%); e.g., ")
	assert.Contains(t, md, "...")
}

func TestNormalizeUnit(t *testing.T) {
	targets := DefaultOptions().UnitTargets
	v, u, ok := NormalizeUnit(212, "°F", targets)
	assert.True(t, ok)
	assert.Equal(t, "°C", u)
	assert.InDelta(t, 100, v, 1e-12)

	v, u, ok = NormalizeUnit(2500, "ug/L", targets)
	assert.True(t, ok)
	assert.Equal(t, "mg/L", u)
	assert.InDelta(t, 2.5, v, 1e-12)

	_, u, ok = NormalizeUnit(5, "NTU", targets)
	assert.False(t, ok)
	assert.Equal(t, "NTU", u)
}

func assertReport(t *testing.T, rep *Report) {
	t.Helper()
	assert.Equal(t, "metrics.csv", rep.Name)
	assert.Equal(t, 10, rep.Rows)
	assert.Equal(t, 9, rep.Processed)
	assert.Equal(t, []string{"processed only 9/10 rows due to MaxRows"}, rep.Warnings)
	require.Len(t, rep.Samples, 3)
	assert.Equal(t, []string{"A", "0,5", "70", "10,0", "1.000,0", "alpha", "first"}, rep.Samples[0])

	conc := columnByName(t, rep, "Concentration")
	assert.Equal(t, "mg/L", conc.Unit)
	checkStats(t, conc, processedConcentration)

	score := columnByName(t, rep, "Score")
	assert.Equal(t, "", score.Unit)
	checkStats(t, score, processedScore)
	count, maxZ := robustOutlierStats(processedScore, 3.5)
	assert.Equal(t, count, score.OutliersCount)
	assert.InDelta(t, maxZ, score.OutliersMaxAbsZ, 1e-6)
	assert.InDelta(t, 3.5, score.OutlierThreshold, 1e-9)

	temp := columnByName(t, rep, "Temp")
	assert.Equal(t, "°C", temp.Unit)
	checkStats(t, temp, processedTemp)
	checkStats(t, columnByName(t, rep, "LocaleNumber"), processedLocale)

	cat := columnByName(t, rep, "Category")
	assert.Equal(t, dataset.KindCategorical, cat.Kind)
	require.NotEmpty(t, cat.TopValues)
	assert.Equal(t, CategoryCount{Value: "alpha", Count: 5}, cat.TopValues[0])
	assert.Equal(t, 3, cat.Unique)

	require.Len(t, rep.Groups, 2)
	groupA, groupB := rep.Groups[0], rep.Groups[1]
	assert.Equal(t, "Group=A", groupA.Key)
	assert.Equal(t, 5, groupA.Size)
	assert.Equal(t, "Group=B", groupB.Key)
	assert.Equal(t, 4, groupB.Size)
	idxA, idxB := []int{0, 1, 2, 6, 8}, []int{3, 4, 5, 7}
	checkNumSummary(t, groupA.Metrics["Score"], subset(processedScore, idxA))
	checkNumSummary(t, groupB.Metrics["Score"], subset(processedScore, idxB))
	checkNumSummary(t, groupA.Metrics["Concentration"], subset(processedConcentration, idxA))
	checkNumSummary(t, groupB.Metrics["Concentration"], subset(processedConcentration, idxB))

	require.NotNil(t, rep.Corr)
	assert.Equal(t, []string{"Concentration", "Temp", "Score", "LocaleNumber"}, rep.Corr.Names)
	assert.InDelta(t, correlation(processedScore, processedLocale), rep.Corr.Values[2][3], 1e-6)

	corrA := correlation(subset(processedScore, idxA), subset(processedLocale, idxA))
	corrB := correlation(subset(processedScore, idxB), subset(processedLocale, idxB))
	require.NotEmpty(t, groupA.CorrPairs)
	assert.Equal(t, "Score", groupA.CorrPairs[0].A)
	assert.Equal(t, "LocaleNumber", groupA.CorrPairs[0].B)
	assert.InDelta(t, corrA, groupA.CorrPairs[0].R, 1e-6)
	require.NotEmpty(t, groupB.CorrPairs)
	assert.Equal(t, "Score", groupB.CorrPairs[0].A)
	assert.InDelta(t, corrB, groupB.CorrPairs[0].R, 1e-6)
}

func columnByName(t *testing.T, rep *Report, name string) ColumnSummary {
	t.Helper()
	for _, c := range rep.Cols {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("column %q not found", name)
	return ColumnSummary{}
}

func checkStats(t *testing.T, col ColumnSummary, vals []float64) {
	t.Helper()
	assert.Equal(t, len(vals), col.NonNull)
	assert.InDelta(t, minFloat(vals), col.Min, 1e-6)
	assert.InDelta(t, maxFloat(vals), col.Max, 1e-6)
	assert.InDelta(t, mean(vals), col.Mean, 1e-6)
	assert.InDelta(t, sampleStd(vals), col.Std, 1e-6)
}

func checkNumSummary(t *testing.T, s NumSummary, vals []float64) {
	t.Helper()
	assert.Equal(t, len(vals), s.Count)
	assert.InDelta(t, minFloat(vals), s.Min, 1e-6)
	assert.InDelta(t, maxFloat(vals), s.Max, 1e-6)
	assert.InDelta(t, mean(vals), s.Mean, 1e-6)
}

// robustOutlierStats recomputes the MAD screen independently of the stats package.
func robustOutlierStats(vals []float64, threshold float64) (count int, maxAbs float64) {
	med := median(vals)
	devs := make([]float64, len(vals))
	for i, v := range vals {
		devs[i] = math.Abs(v - med)
	}
	mad := median(devs)
	if mad == 0 {
		return 0, 0
	}
	for _, v := range vals {
		if az := math.Abs(0.6745 * (v - med) / mad); az > threshold {
			count++
			maxAbs = math.Max(maxAbs, az)
		}
	}
	return
}

func median(vals []float64) float64 {
	cp := append([]float64(nil), vals...)
	for i := 1; i < len(cp); i++ {
		for j := i; j > 0 && cp[j] < cp[j-1]; j-- {
			cp[j], cp[j-1] = cp[j-1], cp[j]
		}
	}
	n := len(cp)
	if n%2 == 1 {
		return cp[n/2]
	}
	return (cp[n/2-1] + cp[n/2]) / 2
}

func subset(vals []float64, idxs []int) []float64 {
	out := make([]float64, len(idxs))
	for i, idx := range idxs {
		out[i] = vals[idx]
	}
	return out
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func sampleStd(vals []float64) float64 {
	m := mean(vals)
	var sum float64
	for _, v := range vals {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

func minFloat(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Min(m, v)
	}
	return m
}

func maxFloat(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Max(m, v)
	}
	return m
}

func correlation(a, b []float64) float64 {
	ma, mb := mean(a), mean(b)
	var num, da2, db2 float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		num += da * db
		da2 += da * da
		db2 += db * db
	}
	return num / math.Sqrt(da2*db2)
}

func mgPerL(v float64) float64 { return v * 1000 }
func toC(f float64) float64    { return (f - 32) * 5.0 / 9.0 }
