package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleKey_String(t *testing.T) {
	k := RuleKey{Repository: "bsl-language-server", Rule: "LineLength"}
	assert.Equal(t, "bsl-language-server:LineLength", k.String())
}

func TestParseRuleKey(t *testing.T) {
	tests := []struct {
		in      string
		want    RuleKey
		wantErr bool
	}{
		{"bsl:MagicNumber", RuleKey{"bsl", "MagicNumber"}, false},
		{"acc:1:2", RuleKey{"acc", "1:2"}, false},
		{"nocolon", RuleKey{}, true},
		{":rule", RuleKey{}, true},
		{"repo:", RuleKey{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRuleKey(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuleKey_JSONMapKey(t *testing.T) {
	in := map[RuleKey]int{{Repository: "bsl", Rule: "A"}: 1}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bsl:A":1}`, string(data))

	var out map[RuleKey]int
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestParseSeverity(t *testing.T) {
	sev, err := ParseSeverity(" major ")
	require.NoError(t, err)
	assert.Equal(t, SeverityMajor, sev)

	_, err = ParseSeverity("fatal")
	assert.Error(t, err)
}

func TestParseRuleType(t *testing.T) {
	tests := map[string]RuleType{
		"CODE_SMELL":       RuleTypeCodeSmell,
		"ERROR":            RuleTypeBug,
		"bug":              RuleTypeBug,
		"VULNERABILITY":    RuleTypeVulnerability,
		"SECURITY_HOTSPOT": RuleTypeVulnerability,
	}
	for in, want := range tests {
		got, err := ParseRuleType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRuleType("STYLE")
	assert.Error(t, err)
}

func TestRemediation_Effort(t *testing.T) {
	tests := []struct {
		name string
		r    Remediation
		gap  float64
		want float64
	}{
		{"constant ignores gap", Remediation{Function: RemediationConstant, BaseMinutes: 5}, 10, 5},
		{"linear", Remediation{Function: RemediationLinear, PerUnitMinutes: 2}, 3, 6},
		{"linear offset", Remediation{Function: RemediationLinearOffset, BaseMinutes: 5, PerUnitMinutes: 1}, 4, 9},
		{"zero gap counts as one", Remediation{Function: RemediationLinear, PerUnitMinutes: 2}, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.r.Effort(tt.gap), 1e-9)
		})
	}
}

func TestRuleParam_Coerce(t *testing.T) {
	tests := []struct {
		typ     ParamType
		in      string
		want    any
		wantErr bool
	}{
		{ParamInteger, "120", int64(120), false},
		{ParamInteger, "1.5", nil, true},
		{ParamFloat, "0.25", 0.25, false},
		{ParamFloat, "abc", nil, true},
		{ParamBoolean, "true", true, false},
		{ParamBoolean, "yes", nil, true},
		{ParamString, "anything", "anything", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ)+"/"+tt.in, func(t *testing.T) {
			got, err := RuleParam{Key: "p", Type: tt.typ}.Coerce(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseParamType(t *testing.T) {
	for in, want := range map[string]ParamType{
		"Integer": ParamInteger,
		"String":  ParamString,
		"Boolean": ParamBoolean,
		"Float":   ParamFloat,
	} {
		got, err := ParseParamType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseParamType("Pattern")
	assert.Error(t, err)
}

func TestDiagnosticSeverity_HostMapping(t *testing.T) {
	assert.Equal(t, SeverityCritical, DiagnosticError.HostSeverity())
	assert.Equal(t, SeverityMajor, DiagnosticWarning.HostSeverity())
	assert.Equal(t, SeverityMinor, DiagnosticInformation.HostSeverity())
	assert.Equal(t, SeverityInfo, DiagnosticHint.HostSeverity())
	assert.Equal(t, RuleTypeBug, DiagnosticError.HostType())
	assert.Equal(t, RuleTypeCodeSmell, DiagnosticHint.HostType())
}

func TestProfile_CloneIsDeep(t *testing.T) {
	sev := SeverityMajor
	p := NewProfile("Sonar way", "bsl")
	key := RuleKey{"bsl", "A"}
	p.Activations[key] = Activation{Severity: &sev, Params: map[string]string{"max": "1"}}

	c := p.Clone()
	c.Activations[key].Params["max"] = "2"
	*c.Activations[key].Severity = SeverityBlocker

	assert.Equal(t, "1", p.Activations[key].Params["max"])
	assert.Equal(t, SeverityMajor, *p.Activations[key].Severity)
}

func TestProfile_Keys(t *testing.T) {
	p := NewProfile("x", "bsl")
	p.Activations[RuleKey{"b", "A"}] = Activation{}
	p.Activations[RuleKey{"a", "Z"}] = Activation{}
	p.Activations[RuleKey{"a", "B"}] = Activation{}
	assert.Equal(t, []RuleKey{{"a", "B"}, {"a", "Z"}, {"b", "A"}}, p.Keys())
	assert.True(t, p.IsActive(RuleKey{"a", "Z"}))
	assert.False(t, p.IsActive(RuleKey{"a", "Y"}))
}

func TestEngineRange_IsPoint(t *testing.T) {
	start := EnginePosition{Line: 1, Character: 2}
	assert.True(t, EngineRange{Start: start}.IsPoint())
	same := start
	assert.True(t, EngineRange{Start: start, End: &same}.IsPoint())
	end := EnginePosition{Line: 1, Character: 3}
	assert.False(t, EngineRange{Start: start, End: &end}.IsPoint())
}
