// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection, and registers a
// new client with the hub; the hub launches the read/write pumps.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, hub, r.RemoteAddr)
	client.hub.register <- client
}

// HealthHandler provides a simple health check endpoint that returns server
// status as plain text.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "MindCare community server is running!")
}

// TestPageHandler serves an HTML page for exercising the room protocol by
// hand: pick a name, join one of the configured rooms, send messages, and
// watch live occupancy counts.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	rooms, err := json.Marshal(currentConfig().Rooms)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Community Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #rooms button { margin-right: 5px; padding: 5px 10px; }
        #rooms button.active { background-color: #007cba; color: white; }
        input[type="text"] { width: 250px; padding: 5px; margin-right: 10px; }
        .system { color: gray; font-style: italic; }
        .chat { color: #155724; }
        .counts { margin: 10px 0; color: #555; }
    </style>
</head>
<body>
    <h1>Community Chat Test</h1>

    <div>
        <input type="text" id="nameInput" placeholder="Display name...">
        <button onclick="connect()">Connect</button>
    </div>

    <div id="rooms"></div>
    <div id="counts" class="counts"></div>
    <div id="messages"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        const rooms = ` + string(rooms) + `;
        let ws = null;
        let username = '';
        let activeRoom = null;

        const messagesDiv = document.getElementById('messages');
        const countsDiv = document.getElementById('counts');
        const roomsDiv = document.getElementById('rooms');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');

        rooms.forEach(room => {
            const button = document.createElement('button');
            button.textContent = room;
            button.id = 'room-' + room;
            button.onclick = () => joinRoom(room);
            roomsDiv.appendChild(button);
        });

        function emit(event, data) {
            ws.send(JSON.stringify({ event: event, data: data }));
        }

        function addLine(text, cls) {
            const line = document.createElement('div');
            line.className = cls;
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function connect() {
            username = document.getElementById('nameInput').value.trim();
            ws = new WebSocket('ws://' + location.host + '/ws');

            ws.onopen = function() {
                addLine('Connected as ' + username, 'system');
                emit('user_connected', { username: username });
            };

            ws.onmessage = function(evt) {
                const env = JSON.parse(evt.data);
                if (env.event === 'message_received') {
                    const msg = env.data;
                    const cls = msg.sender === 'System' ? 'system' : 'chat';
                    addLine(msg.sender + ': ' + msg.text + ' (' + msg.timestamp + ')', cls);
                } else if (env.event === 'user_count_update') {
                    countsDiv.textContent = Object.entries(env.data)
                        .map(([room, count]) => room + ': ' + count)
                        .join(' | ');
                }
            };

            ws.onclose = function() {
                addLine('Connection closed', 'system');
                messageInput.disabled = true;
                sendButton.disabled = true;
            };
        }

        function joinRoom(room) {
            if (!ws || ws.readyState !== WebSocket.OPEN) return;
            if (activeRoom) {
                emit('leave_room', { room: activeRoom });
                document.getElementById('room-' + activeRoom).classList.remove('active');
            }
            activeRoom = room;
            document.getElementById('room-' + room).classList.add('active');
            emit('join_room', { room: room, username: username });
            messageInput.disabled = false;
            sendButton.disabled = false;
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (!text || !activeRoom) return;
            emit('send_message', {
                id: Date.now(),
                text: text,
                sender: username,
                timestamp: new Date().toLocaleTimeString([], { hour: '2-digit', minute: '2-digit' }),
                room: activeRoom
            });
            addLine(username + ': ' + text, 'chat');
            messageInput.value = '';
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
