// Команда loadtest гоняет сценарии корзина → оформление → отгрузка против shop-service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	grpcsvc "github.com/vladislavdragonenkov/shop/internal/service/grpc"
)

type loadMode string

const (
	modeCart     loadMode = "cart"
	modeCheckout loadMode = "checkout"
	modeShip     loadMode = "ship"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	variantID   int64
	qty         int64
	stock       int64
	userBase    int64
	outputPath  string
}

// orderAPI — подмножество *grpcsvc.OrderClient, которое нужно сценарию.
type orderAPI interface {
	CreateCart(ctx context.Context, in *grpcsvc.CreateCartRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
	AddCartItem(ctx context.Context, in *grpcsvc.AddCartItemRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
	Checkout(ctx context.Context, in *grpcsvc.CheckoutRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
	UpdateStatus(ctx context.Context, in *grpcsvc.UpdateStatusRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
}

type catalogAPI interface {
	CreateProduct(ctx context.Context, in *grpcsvc.CreateProductRequest, opts ...grpc.CallOption) (*grpcsvc.ProductResponse, error)
}

// errNotFound: сервис вернул found=false там, где сценарий ждал данные.
var errNotFound = status.Error(codes.NotFound, "empty result")

func parseConfig(args []string) (config, error) {
	var (
		cfg  config
		mode string
	)
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "shop-service gRPC address")
	fs.IntVar(&cfg.total, "total", 400, "scenarios in count mode; caps duration mode when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 5m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 10, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&mode, "mode", string(modeCheckout), "scenario: cart | checkout | ship")
	fs.Int64Var(&cfg.variantID, "variant-id", 0, "variant to put in carts; 0 seeds a new product")
	fs.Int64Var(&cfg.qty, "qty", 1, "quantity per cart line")
	fs.Int64Var(&cfg.stock, "stock", 0, "inventory of the seeded variant; 0 means total*qty")
	fs.Int64Var(&cfg.userBase, "user-base", 1_000_000, "first synthetic user id")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report file")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	switch loadMode(strings.TrimSpace(mode)) {
	case modeCart, modeCheckout, modeShip:
		cfg.mode = loadMode(strings.TrimSpace(mode))
	default:
		return config{}, fmt.Errorf("unsupported mode: %s", mode)
	}

	switch {
	case cfg.duration < 0:
		return config{}, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return config{}, errors.New("total must be > 0 when duration is not set")
	case cfg.totalSet && cfg.total <= 0:
		return config{}, errors.New("total must be > 0 when set explicitly")
	case cfg.concurrency <= 0:
		return config{}, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return config{}, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	case cfg.qty <= 0:
		return config{}, errors.New("qty must be > 0")
	case cfg.variantID < 0 || cfg.stock < 0:
		return config{}, errors.New("variant-id and stock must be >= 0")
	case cfg.userBase <= 0:
		return config{}, errors.New("user-base must be > 0")
	}
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()
	clients := make([]orderAPI, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "create grpc client: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewOrderClient(conn))
	}

	if cfg.variantID == 0 {
		variantID, seedErr := seedVariant(grpcsvc.NewCatalogClient(conns[0]), cfg)
		if seedErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "seed catalog: %v\n", seedErr)
			os.Exit(1)
		}
		cfg.variantID = variantID
	}

	result := run(cfg, clients, newCollector())
	printReport(os.Stdout, result, runTarget(cfg))
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// seedVariant заводит товар с одним вариантом, которого хватит на весь прогон.
func seedVariant(client catalogAPI, cfg config) (int64, error) {
	stock := cfg.stock
	if stock == 0 {
		stock = int64(cfg.total) * cfg.qty
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	resp, err := client.CreateProduct(grpcsvc.OutgoingCaller(ctx, 0, true), &grpcsvc.CreateProductRequest{
		Name:  fmt.Sprintf("Load test %d", time.Now().UnixNano()),
		Price: decimal.NewFromInt(100000),
		Variants: []grpcsvc.VariantInput{
			{Name: "default", Price: decimal.NewFromInt(100000), Inventory: stock},
		},
	})
	if err != nil {
		return 0, err
	}
	if !resp.Found || resp.Product == nil || len(resp.Product.Variants) == 0 {
		return 0, errors.New("catalog returned no variant")
	}
	return resp.Product.Variants[0].ID, nil
}

func run(cfg config, clients []orderAPI, col *collector) report {
	startedAt := time.Now()
	jobs := make(chan int, cfg.concurrency*2)

	var wg sync.WaitGroup
	for worker := 0; worker < cfg.concurrency; worker++ {
		wg.Add(1)
		go func(client orderAPI) {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(client, cfg, index, col)
			}
		}(clients[worker%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return col.buildReport(cfg.mode, startedAt, time.Since(startedAt))
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()
	for i := 0; !cfg.totalSet || i < cfg.total; i++ {
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario проводит одного синтетического пользователя по жизненному циклу заказа.
// Каждый сценарий берёт своего пользователя, поэтому корзины не пересекаются.
func runScenario(client orderAPI, cfg config, index int, col *collector) (err error) {
	start := time.Now()
	defer func() {
		col.record(scenarioMetric, time.Since(start), grpcCode(err))
	}()

	userID := cfg.userBase + int64(index)

	if _, err = call(col, cfg.timeout, "CreateCart", userID, false, func(ctx context.Context) (*grpcsvc.OrderResponse, error) {
		return client.CreateCart(ctx, &grpcsvc.CreateCartRequest{})
	}); err != nil {
		return err
	}
	if _, err = call(col, cfg.timeout, "AddCartItem", userID, false, func(ctx context.Context) (*grpcsvc.OrderResponse, error) {
		return client.AddCartItem(ctx, &grpcsvc.AddCartItemRequest{VariantID: cfg.variantID, Qty: cfg.qty})
	}); err != nil || cfg.mode == modeCart {
		return err
	}

	order, err := call(col, cfg.timeout, "Checkout", userID, false, func(ctx context.Context) (*grpcsvc.OrderResponse, error) {
		return client.Checkout(ctx, &grpcsvc.CheckoutRequest{
			FullName:      fmt.Sprintf("Load User %d", userID),
			Phone:         "0900000000",
			Province:      "Hà Nội",
			District:      "Ba Đình",
			Ward:          "Phúc Xá",
			Address:       fmt.Sprintf("%d Load Street", index),
			PaymentMethod: "cod",
			ShippingPrice: decimal.NewFromInt(30000),
		})
	})
	if err != nil || cfg.mode == modeCheckout {
		return err
	}

	_, err = call(col, cfg.timeout, "UpdateStatus", 0, true, func(ctx context.Context) (*grpcsvc.OrderResponse, error) {
		return client.UpdateStatus(ctx, &grpcsvc.UpdateStatusRequest{OrderID: order.ID, Status: "shipping"})
	})
	return err
}

// call выполняет один RPC от имени пользователя (или админа) и пишет его в collector.
// found=false считается ошибкой сценария.
func call(col *collector, timeout time.Duration, method string, userID int64, isAdmin bool, fn func(context.Context) (*grpcsvc.OrderResponse, error)) (*grpcsvc.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	resp, err := fn(grpcsvc.OutgoingCaller(ctx, userID, isAdmin))
	if err == nil && (resp == nil || !resp.Found || resp.Order == nil) {
		err = errNotFound
	}
	col.record(method, time.Since(start), grpcCode(err))
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}
