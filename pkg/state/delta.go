package state

// Delta is a stage's partial update. The set of implementations is closed:
// each one can only assign the fields its stage owns.
type Delta interface {
	// Stage names the owner of the delta.
	Stage() string
	apply(*State)
}

// PlannerDelta carries a (re)drafted design.
type PlannerDelta struct {
	DesignDoc    string
	GameType     string
	TemplateCode string
}

func (PlannerDelta) Stage() string { return "planner" }

func (d PlannerDelta) apply(s *State) {
	s.DesignDoc = d.DesignDoc
	s.GameType = d.GameType
	s.TemplateCode = d.TemplateCode
	s.Status = StatusEvaluating
}

// EvaluatorDelta carries the design review. Merging it counts one design
// iteration.
type EvaluatorDelta struct {
	Feedback string
	Approved bool
}

func (EvaluatorDelta) Stage() string { return "evaluator" }

func (d EvaluatorDelta) apply(s *State) {
	s.DesignFeedback = d.Feedback
	s.DesignApproved = d.Approved
	s.DesignIteration++
}

// ImplementationPlanDelta carries the technical plan.
type ImplementationPlanDelta struct {
	Plan string
}

func (ImplementationPlanDelta) Stage() string { return "implementation_planner" }

func (d ImplementationPlanDelta) apply(s *State) {
	s.ImplementationPlan = d.Plan
	s.Status = StatusCoding
}

// CoderDelta carries a generated game.
type CoderDelta struct {
	GameCode      string
	Documentation string
}

func (CoderDelta) Stage() string { return "coder" }

func (d CoderDelta) apply(s *State) {
	s.GameCode = d.GameCode
	s.Documentation = d.Documentation
	s.Status = StatusGeneratingAssets
}

// AssetDelta carries the game with assets inlined.
type AssetDelta struct {
	GameCode string
	Assets   []string
}

func (AssetDelta) Stage() string { return "asset_embedder" }

func (d AssetDelta) apply(s *State) {
	s.GameCode = d.GameCode
	s.Assets = cloneStrings(d.Assets)
	s.AssetsEmbedded = true
	s.Status = StatusPlaytesting
}

// PlayerDelta carries a playtest verdict. Errors replace PlaytestErrors and
// are appended to the run's error log. Merging it counts one code iteration.
type PlayerDelta struct {
	Report   string
	Approved bool
	Errors   []string
}

func (PlayerDelta) Stage() string { return "player" }

func (d PlayerDelta) apply(s *State) {
	s.PlaytestReport = d.Report
	s.ShipApproved = d.Approved
	s.PlaytestErrors = cloneStrings(d.Errors)
	s.Errors = append(s.Errors, d.Errors...)
	s.CodeIteration++
	if d.Approved {
		s.Status = StatusDone
	} else {
		s.Status = StatusCoding
	}
}

// Transition is the orchestrator's own update: a status change and an
// optional error entry.
type Transition struct {
	Status Status
	Error  string
}

func (Transition) Stage() string { return "orchestrator" }

func (d Transition) apply(s *State) {
	if d.Status != "" {
		s.Status = d.Status
	}
	if d.Error != "" {
		s.Errors = append(s.Errors, d.Error)
	}
}
