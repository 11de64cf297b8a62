package server

import (
	"html/template"

	"github.com/Tyrowin/gochat-rooms/internal/chat"
)

type lobbyData struct {
	Username string
	Rooms    []chat.RoomInfo
	Error    string
}

type roomData struct {
	Room     string
	Username string
	Socket   string
}

const pageStyle = `
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 360px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .error { color: #721c24; }
        .time { color: gray; margin-right: 6px; }`

var lobbyPage = template.Must(template.New("lobby").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>GoChat</title>
    <style>` + pageStyle + `</style>
</head>
<body>
    <h1>GoChat</h1>
    {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
    <form method="POST" action="/">
        <p><input type="text" name="username" placeholder="Your name" maxlength="100" value="{{.Username}}" required></p>
        <p><input type="text" name="room" placeholder="Room" maxlength="100" required></p>
        <button type="submit">Join</button>
    </form>
    {{if .Rooms}}
    <h2>Active rooms</h2>
    <ul>
        {{range .Rooms}}<li><a href="/rooms/{{.Name}}">{{.Name}}</a> ({{.Members}})</li>{{end}}
    </ul>
    {{end}}
</body>
</html>`))

var roomPage = template.Must(template.New("room").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>GoChat: {{.Room}}</title>
    <style>` + pageStyle + `</style>
</head>
<body>
    <h1>{{.Room}}</h1>
    <p>Signed in as <strong>{{.Username}}</strong>. <a href="/">Leave</a></p>

    <div id="status" class="status disconnected">Disconnected</div>
    <button id="loadMore">Load older messages</button>
    <div id="messages"></div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" disabled>Send</button>
    </div>

    <script>
        const socketPath = {{.Socket}};
        const username = {{.Username}};
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const statusDiv = document.getElementById('status');
        const seen = new Set();
        let oldestId = null;
        let ws = null;

        function render(msg) {
            const el = document.createElement('div');
            const time = document.createElement('span');
            time.className = 'time';
            time.textContent = msg.timestamp;
            const who = document.createElement('strong');
            who.textContent = msg.username + ': ';
            el.appendChild(time);
            el.appendChild(who);
            el.appendChild(document.createTextNode(msg.message));
            return el;
        }

        function remember(msg) {
            if (seen.has(msg.id)) {
                return false;
            }
            seen.add(msg.id);
            if (oldestId === null || msg.id < oldestId) {
                oldestId = msg.id;
            }
            return true;
        }

        function append(msg) {
            if (remember(msg)) {
                messagesDiv.appendChild(render(msg));
                messagesDiv.scrollTop = messagesDiv.scrollHeight;
            }
        }

        function prepend(messages) {
            for (let i = messages.length - 1; i >= 0; i--) {
                if (remember(messages[i])) {
                    messagesDiv.insertBefore(render(messages[i]), messagesDiv.firstChild);
                }
            }
        }

        function notice(text) {
            const el = document.createElement('div');
            el.className = 'error';
            el.textContent = text;
            messagesDiv.appendChild(el);
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + socketPath);
            ws.onopen = function() { updateStatus(true); };
            ws.onclose = function() { updateStatus(false); ws = null; };
            ws.onmessage = function(event) {
                const data = JSON.parse(event.data);
                if (data.type === 'history') {
                    prepend(data.messages);
                } else if (data.type === 'error') {
                    notice(data.error);
                } else {
                    append(data);
                }
            };
        }

        function sendMessage() {
            const message = messageInput.value.trim();
            if (message && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({message: message, username: username}));
                messageInput.value = '';
            }
        }

        document.getElementById('loadMore').addEventListener('click', function() {
            if (oldestId !== null && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: 'load_more', oldest_id: oldestId}));
            }
        });
        sendButton.addEventListener('click', sendMessage);
        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
        connect();
    </script>
</body>
</html>`))
