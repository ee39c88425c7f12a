package event

// AddWebhookInput 注册订阅端点参数
type AddWebhookInput struct {
	URL         string   `json:"url" binding:"required"`
	APIKeyName  string   `json:"api_key_name"`
	APIKeyValue string   `json:"api_key_value"`
	Events      []string `json:"events" binding:"required"`
}

// defaultPager 内部使用的分页器，避免传入 nil 导致空指针
type defaultPager struct {
	limit int
}

func (p *defaultPager) Offset() int { return 0 }
func (p *defaultPager) Limit() int  { return p.limit }
