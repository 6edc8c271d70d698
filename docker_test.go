package backoffice_test

import (
	"os"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// composeFile はdocker-compose.ymlのうち検証に必要な部分。
type composeFile struct {
	Services map[string]struct {
		Command     []string          `yaml:"command"`
		Environment map[string]string `yaml:"environment"`
		Networks    []string          `yaml:"networks"`
		Image       string            `yaml:"image"`
	} `yaml:"services"`
	Networks map[string]struct {
		Internal bool `yaml:"internal"`
	} `yaml:"networks"`
}

func readDockerfile(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("Dockerfile")
	if err != nil {
		t.Fatalf("failed to read Dockerfile: %v", err)
	}
	return string(data)
}

func readCompose(t *testing.T) composeFile {
	t.Helper()
	data, err := os.ReadFile("docker-compose.yml")
	if err != nil {
		t.Fatalf("failed to read docker-compose.yml: %v", err)
	}
	var c composeFile
	if err := yaml.Unmarshal(data, &c); err != nil {
		t.Fatalf("failed to parse docker-compose.yml: %v", err)
	}
	return c
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readDockerfile(t)

	// マルチステージビルドの確認: ビルドステージと実行ステージが存在すること
	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") && !strings.Contains(lastFrom, "alpine") && !strings.Contains(lastFrom, "scratch") {
		t.Errorf("final stage should use a minimal base image (distroless/alpine/scratch), got: %s", lastFrom)
	}
}

func TestDockerfileBuildsBackofficeBinary(t *testing.T) {
	content := readDockerfile(t)

	if !strings.Contains(content, "./cmd/backoffice") {
		t.Error("Dockerfile should build ./cmd/backoffice")
	}
	if !strings.Contains(content, "ENTRYPOINT") {
		t.Error("Dockerfile should contain ENTRYPOINT")
	}
	// distrolessにはシェルがないため、ヘルスチェックはサブコマンドで行う
	if !strings.Contains(content, `"healthcheck"`) {
		t.Error("Dockerfile HEALTHCHECK should use the healthcheck subcommand")
	}
}

func TestDockerComposeServices(t *testing.T) {
	c := readCompose(t)

	for _, svc := range []string{"console", "migrate", "db"} {
		if _, ok := c.Services[svc]; !ok {
			t.Errorf("docker-compose.yml should contain service %q", svc)
		}
	}

	if !strings.HasPrefix(c.Services["db"].Image, "postgres:") {
		t.Errorf("db service should use PostgreSQL image, got %q", c.Services["db"].Image)
	}
	if !slices.Equal(c.Services["migrate"].Command, []string{"migrate"}) {
		t.Errorf("migrate service command = %v", c.Services["migrate"].Command)
	}
}

func TestDockerComposeConsoleUsesPostgresBackend(t *testing.T) {
	env := readCompose(t).Services["console"].Environment

	if env["CREDENTIAL_BACKEND"] != "postgres" {
		t.Errorf("CREDENTIAL_BACKEND = %q, want postgres", env["CREDENTIAL_BACKEND"])
	}
	if !strings.Contains(env["DATABASE_URL"], "@db:5432") {
		t.Errorf("DATABASE_URL should point to the db service, got %q", env["DATABASE_URL"])
	}
	if env["API_BASE_URL"] == "" {
		t.Error("API_BASE_URL should be set")
	}
}

func TestDockerComposeNetworks(t *testing.T) {
	c := readCompose(t)

	if !c.Networks["internal"].Internal {
		t.Error("docker-compose.yml should define an internal network (internal: true)")
	}
	// DBは外部ネットワークに接続しない
	if slices.Contains(c.Services["db"].Networks, "external") {
		t.Error("db must not join the external network")
	}
	if !slices.Contains(c.Services["console"].Networks, "external") {
		t.Error("console needs the external network to reach the backend API")
	}
}
