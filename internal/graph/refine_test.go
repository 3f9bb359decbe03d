package graph

import (
	"testing"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
)

func TestTypeRefiners(t *testing.T) {
	chain := DefaultRefiners()
	tests := []struct {
		name    string
		raw     domain.RawType
		imports []string
		want    domain.NodeKind
	}{
		{"boot app", domain.RawType{SimpleName: "App", Annotations: []string{"SpringBootApplication"}}, nil, domain.KindService},
		{"rest controller", domain.RawType{SimpleName: "UserApi", Annotations: []string{"RestController"}}, nil, domain.KindEndpoint},
		{"feign", domain.RawType{SimpleName: "Billing", Annotations: []string{"FeignClient"}}, nil, domain.KindClient},
		{"service", domain.RawType{SimpleName: "Orders", Annotations: []string{"org.springframework.stereotype.Service"}}, nil, domain.KindService},
		{"jpa generic super", domain.RawType{SimpleName: "Users", KindRepr: "interface", Supertypes: []string{"JpaRepository<User, Long>"}}, nil, domain.KindDBQuery},
		{"mapper", domain.RawType{SimpleName: "UserMapper"}, nil, domain.KindMapper},
		{"config", domain.RawType{SimpleName: "Beans", Annotations: []string{"Configuration"}}, nil, domain.KindConfig},
		{"job", domain.RawType{SimpleName: "NightlyJob"}, nil, domain.KindJob},
		{"topic", domain.RawType{SimpleName: "OrderListener"}, []string{"org.springframework.kafka.annotation.KafkaListener"}, domain.KindTopic},
		{"migration", domain.RawType{SimpleName: "V1Migration"}, nil, domain.KindMigration},
		{"schema", domain.RawType{SimpleName: "Dto", PkgFQN: "com.a.schema"}, nil, domain.KindSchema},
		{"test", domain.RawType{SimpleName: "OrdersTest"}, nil, domain.KindTest},
		{"exception", domain.RawType{SimpleName: "Boom", Supertypes: []string{"RuntimeException"}}, nil, domain.KindException},
		{"plain", domain.RawType{SimpleName: "Point"}, nil, domain.KindClass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := RefineContext{Lang: lang.Kotlin, Imports: tt.imports}
			if got := chain.ForType(domain.KindClass, &tt.raw, ctx); got != tt.want {
				t.Errorf("ForType = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRefinerOrder(t *testing.T) {
	// Controller wins over the name-based test rule because it comes first.
	raw := domain.RawType{SimpleName: "HealthTest", Annotations: []string{"RestController"}}
	got := DefaultRefiners().ForType(domain.KindClass, &raw, RefineContext{Lang: lang.Java})
	if got != domain.KindEndpoint {
		t.Errorf("ForType = %s, want ENDPOINT", got)
	}
}

func TestFunctionRefiners(t *testing.T) {
	chain := DefaultRefiners()
	ctx := RefineContext{Lang: lang.Kotlin}
	tests := []struct {
		anns []string
		want domain.NodeKind
	}{
		{[]string{"GetMapping"}, domain.KindEndpoint},
		{[]string{"RequestMapping"}, domain.KindEndpoint},
		{[]string{"Scheduled"}, domain.KindJob},
		{[]string{"KafkaListener"}, domain.KindTopic},
		{[]string{"RabbitListener"}, domain.KindTopic},
		{[]string{"Transactional"}, domain.KindMethod},
	}
	for _, tt := range tests {
		raw := domain.RawFunction{Name: "f", Annotations: tt.anns}
		if got := chain.ForFunction(domain.KindMethod, &raw, ctx); got != tt.want {
			t.Errorf("ForFunction(%v) = %s, want %s", tt.anns, got, tt.want)
		}
	}
}

func TestUnsupportedLanguageKeepsBase(t *testing.T) {
	raw := domain.RawType{SimpleName: "UserService", Annotations: []string{"Service"}}
	if got := DefaultRefiners().ForType(domain.KindClass, &raw, RefineContext{Lang: "scala"}); got != domain.KindClass {
		t.Errorf("ForType = %s, want CLASS", got)
	}
}
