/*
Package farm holds the fixed business presets of the estate.

PURPOSE:
  The engine is parameterised by a task price table and a sub-group
  classifier. This package provides the ones the estate actually runs
  with: the standard task catalog (including the milk and meal-basket
  indemnity tasks) and the cooperative classifier used for rollup
  subtotals.

AVAILABLE PRESETS:
  StandardCatalogYAML:   task catalog in the factory's file format
  CooperativeClassifier: splits rollup lines into cooperative / general

EXAMPLE:
  tasks, err := factory.NewCatalogFactory().ParseYAML([]byte(farm.StandardCatalogYAML))
  svc.Classify = farm.CooperativeClassifier("coop")

SEE ALSO:
  - factory/catalog.go: catalog parsing (JSON or YAML)
  - engine/snapshot.go: Classifier
*/
package farm

import (
	"fmt"

	"github.com/warp/harvest-payroll/engine"
)

// =============================================================================
// STANDARD TASK CATALOG
// =============================================================================

// Daily indemnity rates paid per day worked.
const (
	LaitDailyRate   = "8.00"
	PanierDailyRate = "12.00"
)

// StandardCatalogYAML is the default price table, loaded when no task file
// is configured. Prices are per unit (crate, tree, row or day).
var StandardCatalogYAML = fmt.Sprintf(`tasks:
  - id: 1
    price: "5.00"
    category: recolte
    description: cueillette agrumes (caisse)
  - id: 2
    price: "3.50"
    category: recolte
    description: ramassage olives (caisse)
  - id: 3
    price: "1.20"
    category: taille
    description: taille arbre
  - id: 4
    price: "0.80"
    category: entretien
    description: desherbage (rang)
  - id: 5
    price: "70.00"
    category: journee
    description: journee entretien irrigation
  - id: %d
    price: "%s"
    category: indemnite
    description: indemnite lait
  - id: %d
    price: "%s"
    category: indemnite
    description: prime panier
`, engine.LaitTaskID, LaitDailyRate, engine.PanierTaskID, PanierDailyRate)

// =============================================================================
// SUB-GROUP CLASSIFICATION
// =============================================================================

const (
	SubGroupCooperative = "cooperative"
	SubGroupGeneral     = "general"
)

// CooperativeClassifier puts lines of the cooperative group in their own
// sub-group. An empty coop group classifies everyone as general.
func CooperativeClassifier(coop engine.GroupID) engine.Classifier {
	return func(l engine.Line) string {
		if coop != "" && l.GroupID == coop {
			return SubGroupCooperative
		}
		return SubGroupGeneral
	}
}
