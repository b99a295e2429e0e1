package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mergeeats/core/core/model"
	"github.com/mergeeats/core/core/order"
)

var (
	orderAddr       string
	orderCustomer   string
	orderRestaurant string
	orderItem       string
	orderQuantity   int
	orderAddress    string
	orderLat        float64
	orderLon        float64
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Inject a test order into a running instance",
	RunE:  runOrder,
}

func init() {
	orderCmd.Flags().StringVar(&orderAddr, "addr", "http://localhost:8080", "base URL of the running service")
	orderCmd.Flags().StringVar(&orderCustomer, "customer", "test-customer", "customer id")
	orderCmd.Flags().StringVar(&orderRestaurant, "restaurant", "", "restaurant id")
	orderCmd.Flags().StringVar(&orderItem, "item", "", "menu item id")
	orderCmd.Flags().IntVar(&orderQuantity, "quantity", 1, "item quantity")
	orderCmd.Flags().StringVar(&orderAddress, "address", "1 test street", "delivery address text")
	orderCmd.Flags().Float64Var(&orderLat, "lat", 0, "drop-off latitude")
	orderCmd.Flags().Float64Var(&orderLon, "lon", 0, "drop-off longitude")
	_ = orderCmd.MarkFlagRequired("restaurant")
	_ = orderCmd.MarkFlagRequired("item")
	rootCmd.AddCommand(orderCmd)
}

func runOrder(cmd *cobra.Command, args []string) error {
	in := order.CreateOrderInput{
		CustomerID:   orderCustomer,
		RestaurantID: orderRestaurant,
		Items:        []order.ItemInput{{MenuItemID: orderItem, Quantity: orderQuantity}},
		Address: model.Address{
			Text:  orderAddress,
			Point: model.GeoPoint{Lat: orderLat, Lon: orderLon},
		},
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(orderAddr+"/api/orders", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("order rejected: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	var o model.Order
	if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "order %s created, status %s, total %s\n", o.ID, o.Status, o.TotalAmount)
	return nil
}
