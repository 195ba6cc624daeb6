package app

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"引数なしはwhoami", nil, CommandWhoami},
		{"whoami", []string{"whoami"}, CommandWhoami},
		{"register", []string{"register", "a@example.com", "a", "A", "B", "p"}, CommandRegister},
		{"projects", []string{"projects"}, CommandProjects},
		{"issues", []string{"issues", "1"}, CommandIssues},
		{"issue", []string{"issue", "1"}, CommandIssue},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"未知のコマンドはwhoamiにフォールバック", []string{"bogus"}, CommandWhoami},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
