package guard

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoleMaster は管理者ロール。
const RoleMaster = "ROLE_MASTER"

// reservedPaths はコンソール自身が使用するため、ルートテーブルで上書きできないパス。
var reservedPaths = []string{
	"/", "/login", "/logout", "/unauthorized", "/404",
	"/session", "/api", "/health", "/metrics",
}

// Route は保護されたコンソールルートを表す。
type Route struct {
	Path  string   `yaml:"path"`
	Title string   `yaml:"title"`
	Roles []string `yaml:"roles"`
}

// RouteTable は保護されたルートの一覧。
type RouteTable struct {
	Routes []Route `yaml:"routes"`
}

// DefaultRouteTable は既定のルートテーブルを返す。すべてROLE_MASTERが必要。
func DefaultRouteTable() RouteTable {
	master := []string{RoleMaster}
	routes := []Route{
		{Path: "/app", Title: "Início"},
		{Path: "/transporte", Title: "Transporte"},
		{Path: "/contasapagar", Title: "Contas a pagar"},
		{Path: "/operacao", Title: "Operação"},
		{Path: "/operadora", Title: "Operadora"},
		{Path: "/financeiro", Title: "Financeiro"},
		{Path: "/reporte-campo", Title: "Reporte de campo"},
		{Path: "/reporte-campo-observacao/{id}", Title: "Observação do reporte"},
		{Path: "/quimicos", Title: "Químicos"},
		{Path: "/poco", Title: "Poço"},
		{Path: "/usuario", Title: "Usuário"},
		{Path: "/veiculo", Title: "Veículo"},
		{Path: "/abastecimento", Title: "Abastecimento"},
		{Path: "/fornecedorquimico", Title: "Fornecedor de químicos"},
	}
	for i := range routes {
		routes[i].Roles = append([]string(nil), master...)
	}
	return RouteTable{Routes: routes}
}

// LoadRouteTable はYAMLファイルからルートテーブルを読み込む。
// pathが空の場合は既定のテーブルを返す。
func LoadRouteTable(path string) (RouteTable, error) {
	if path == "" {
		return DefaultRouteTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RouteTable{}, fmt.Errorf("failed to read route table: %w", err)
	}
	return ParseRouteTable(data)
}

// ParseRouteTable はYAMLをルートテーブルとして解釈し、検証する。
func ParseRouteTable(data []byte) (RouteTable, error) {
	var table RouteTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return RouteTable{}, fmt.Errorf("failed to parse route table: %w", err)
	}
	if err := table.Validate(); err != nil {
		return RouteTable{}, err
	}
	return table, nil
}

// Validate はパスの形式、重複、予約済みパスとの衝突を検証する。
func (t RouteTable) Validate() error {
	if len(t.Routes) == 0 {
		return errors.New("route table has no routes")
	}

	seen := make(map[string]bool, len(t.Routes))
	for _, r := range t.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("route path must start with '/': %q", r.Path)
		}
		if isReserved(r.Path) {
			return fmt.Errorf("route path is reserved: %q", r.Path)
		}
		if seen[r.Path] {
			return fmt.Errorf("duplicate route path: %q", r.Path)
		}
		seen[r.Path] = true
	}
	return nil
}

func isReserved(path string) bool {
	for _, p := range reservedPaths {
		if path == p {
			return true
		}
		if p != "/" && strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
