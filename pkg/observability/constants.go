package observability

const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
	AttrModelGroup     = "llm.model_group"
	AttrProvider       = "llm.provider"
	AttrDeploymentID   = "llm.deployment_id"
	AttrTokensPrompt   = "llm.tokens.prompt"
	AttrTokensOutput   = "llm.tokens.completion"
	AttrMCPServer      = "mcp.server_id"
	AttrMCPTool        = "mcp.tool_name"
	AttrErrorType      = "error.type"
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPRespSize   = "http.response_size"
	AttrRequestID      = "gateway.request_id"

	SpanChatCompletion = "gateway.chat_completion"
	SpanProviderCall   = "gateway.provider_call"
	SpanMCPToolCall    = "gateway.mcp_tool_call"
	SpanHTTPRequest    = "gateway.http_request"

	DefaultServiceName  = "litellm-go-gateway"
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
	DefaultSamplingRate = 1.0
)
