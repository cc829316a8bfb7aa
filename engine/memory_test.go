package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory(time.Hour)
	defer m.Stop()

	assert.Empty(t, m.Get("shop.example"))

	m.Set("shop.example", "chromedp")
	assert.Equal(t, "chromedp", m.Get("shop.example"))

	m.Delete("shop.example")
	assert.Empty(t, m.Get("shop.example"))
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(10 * time.Millisecond)
	defer m.Stop()

	m.Set("shop.example", "rod")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, m.Get("shop.example"))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "shop.example", Domain("https://shop.example/item/1?x=1"))
	assert.Equal(t, "shop.example", Domain("http://shop.example:8080/"))
}
