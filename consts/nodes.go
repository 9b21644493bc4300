package consts

// Report pipeline stages, used as graph node names.
const (
	StageMarket    = "market"
	StageCompany   = "company"
	StageStrategy  = "strategy"
	StageSynthesis = "synthesis"

	ReportGraphName = "investment_report"
)

// Analysis roles, keyed as in personas.yaml.
const (
	MarketAnalyst     = "market_analyst"
	CompanyResearcher = "company_researcher"
	StockStrategist   = "stock_strategist"
	TeamLead          = "team_lead"
)
